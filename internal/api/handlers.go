package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Gammanik/upload-compress/internal/assemble"
	"github.com/Gammanik/upload-compress/internal/catalog"
	"github.com/Gammanik/upload-compress/internal/chunkstore"
	"github.com/Gammanik/upload-compress/internal/pipeline"
)

const defaultRecentLimit = 20

// Handler serves the upload pipeline over HTTP
type Handler struct {
	Logger   *zap.Logger
	Pipeline *pipeline.Pipeline
}

// Register attaches the routes to the router
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/uploads/{uploadID}/chunks/{index}", h.ReceiveChunk).Methods("PUT")
	router.HandleFunc("/uploads/{uploadID}/complete", h.Finalize).Methods("POST")
	router.HandleFunc("/files/recent", h.Recent).Methods("GET")
	router.HandleFunc("/files/{id}", h.Retrieve).Methods("GET")
	router.HandleFunc("/status", h.Status).Methods("GET")
}

// ReceiveChunk stages one chunk of an upload
func (h *Handler) ReceiveChunk(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	uploadID := vars["uploadID"]

	index, err := strconv.Atoi(vars["index"])
	if err != nil || index < 0 {
		http.Error(w, "invalid chunk index", http.StatusBadRequest)
		return
	}

	total, err := strconv.Atoi(r.Header.Get("X-Chunk-Total"))
	if err != nil || total <= 0 {
		http.Error(w, "missing or invalid X-Chunk-Total header", http.StatusBadRequest)
		return
	}

	filename := r.Header.Get("X-Filename")
	if filename == "" {
		filename = "uploaded.bin"
	}

	if err := h.Pipeline.ReceiveChunk(uploadID, index, total, filename, r.Body); err != nil {
		if chunkstore.ErrTotalMismatch.Has(err) {
			http.Error(w, "chunk total does not match earlier chunks", http.StatusBadRequest)
		} else {
			// surface storage failures so the client retries this one chunk
			http.Error(w, "failed to store chunk", http.StatusInsufficientStorage)
		}
		h.Logger.Error("chunk receive failed",
			zap.String("uploadID", uploadID),
			zap.Int("index", index),
			zap.Error(err))
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// Finalize reassembles and compresses the upload, answering with the catalog entry
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadID"]

	filename := r.Header.Get("X-Filename")
	if filename == "" {
		filename = "uploaded.bin"
	}

	entry, err := h.Pipeline.Finalize(r.Context(), uploadID, filename)
	if err != nil {
		if assemble.ErrIncomplete.Has(err) {
			http.Error(w, "upload is not complete", http.StatusConflict)
			return
		}
		http.Error(w, "finalize failed", http.StatusInternalServerError)
		h.Logger.Error("finalize failed", zap.String("uploadID", uploadID), zap.Error(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":           entry.ID,
		"downloadLink": entry.DownloadLink,
		"category":     entry.Category,
		"sizeBytes":    entry.SizeBytes,
	})
}

// Retrieve streams a stored artifact back to the client
func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	entry, stream, err := h.Pipeline.Retrieve(id)
	if err != nil {
		if catalog.ErrNotFound.Has(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "retrieve failed", http.StatusInternalServerError)
		h.Logger.Error("retrieve failed", zap.String("id", id), zap.Error(err))
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Disposition", "attachment; filename=\""+entry.Filename+"\"")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(entry.SizeBytes, 10))

	if _, err := io.Copy(w, stream); err != nil {
		h.Logger.Error("failed to stream artifact", zap.String("id", id), zap.Error(err))
	}
}

// Recent lists the newest catalog entries
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.Pipeline.RecentUploads(limit)
	if err != nil {
		http.Error(w, "listing failed", http.StatusInternalServerError)
		h.Logger.Error("recent listing failed", zap.Error(err))
		return
	}

	type item struct {
		ID            string `json:"id"`
		Filename      string `json:"filename"`
		SizeBytes     int64  `json:"sizeBytes"`
		CreatedAt     string `json:"createdAt"`
		DownloadCount int64  `json:"downloadCount"`
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		items = append(items, item{
			ID:            e.ID,
			Filename:      e.Filename,
			SizeBytes:     e.SizeBytes,
			CreatedAt:     e.CreatedAt.Format(time.RFC3339),
			DownloadCount: e.DownloadCount,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(items)
}

// Status reports basic service health figures
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	count, totalBytes, err := h.Pipeline.Stats()
	if err != nil {
		http.Error(w, "status failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"online","artifacts":%d,"totalBytes":%d}`+"\n", count, totalBytes)
}
