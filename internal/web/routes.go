package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-gallery/internal/web/handlers"
)

// requestTimeout bounds every route except the event stream.
const requestTimeout = time.Minute

func (s *Server) setupRoutes() {
	galleryHandler := handlers.NewGalleryHandler(s.deps.Gallery, s.log)
	matchHandler := handlers.NewMatchHandler(s.deps.Gallery, s.deps.Comparator)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// SSE stays open for as long as the client listens
		r.Get("/gallery/events", galleryHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))

			// Gallery
			r.Get("/gallery", galleryHandler.List)
			r.Post("/gallery", galleryHandler.Enroll)
			r.Get("/gallery/search", galleryHandler.Search)
			r.Get("/gallery/capacity", galleryHandler.Capacity)
			r.Post("/gallery/batch", galleryHandler.EnrollBatch)
			r.Post("/gallery/evict", galleryHandler.Evict)
			r.Get("/gallery/{identity}", galleryHandler.Get)
			r.Delete("/gallery/{identity}", galleryHandler.Delete)
			r.Get("/gallery/{identity}/attachment", galleryHandler.Attachment)
			r.Put("/gallery/{identity}/enabled", galleryHandler.SetEnabled)
			r.Put("/gallery/{identity}/remarks", galleryHandler.UpdateRemarks)
			r.Get("/records/{id}", galleryHandler.GetByID)

			// Matching
			r.Post("/match", matchHandler.Match)
			r.Post("/verify", matchHandler.Verify)
			r.Post("/threshold", matchHandler.Threshold)

			// Image pipeline
			if s.deps.Recognizer != nil {
				recognizeHandler := handlers.NewRecognizeHandler(s.deps.Recognizer, s.log)
				r.Post("/recognize", recognizeHandler.Recognize)
				r.Post("/recognize/enroll", recognizeHandler.Enroll)
			}
		})
	})
}
