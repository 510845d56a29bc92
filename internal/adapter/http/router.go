package http

import (
	"net/http"

	"github.com/YelzhanWeb/dispatch/internal/adapter/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes selects which handler groups a process serves. Nil groups are
// not mounted.
type Routes struct {
	Orders   *OrderHandler
	Tracking *TrackingHandler
}

func NewRouter(logger logger.Logger, routes Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggingMiddleware(logger))

	if routes.Orders != nil {
		r.Post("/orders/{id}/confirm", routes.Orders.Confirm)
		r.Post("/orders/{id}/accept", routes.Orders.Accept)
		r.Post("/orders/{id}/cancel", routes.Orders.Cancel)
		r.Post("/orders/{id}/complete", routes.Orders.Complete)
		r.Put("/staff/{id}/availability", routes.Orders.SetAvailability)
	}

	if routes.Tracking != nil {
		r.Get("/orders/{id}/status", routes.Tracking.GetOrderStatus)
		r.Get("/orders/{id}/history", routes.Tracking.GetOrderHistory)
		r.Get("/staff", routes.Tracking.GetStaffStatus)
		r.Get("/dispatch/state", routes.Tracking.GetDispatchState)
	}

	return r
}
