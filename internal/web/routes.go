package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	recognizeHandler := handlers.NewRecognizeHandler(s.system)
	registerHandler := handlers.NewRegisterHandler(s.system)
	usersHandler := handlers.NewUsersHandler(s.system)
	attendanceHandler := handlers.NewAttendanceHandler(s.system)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/recognize", recognizeHandler.Recognize)
		r.Post("/register", registerHandler.Register)

		r.Get("/users", usersHandler.List)
		r.Get("/users/{id}/last-event", usersHandler.LastEvent)

		r.Post("/attendance", attendanceHandler.Log)
		r.Get("/attendance", attendanceHandler.Query)
		r.Get("/attendance/export", attendanceHandler.Export)
	})
}
