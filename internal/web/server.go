// Package web serves the REST API and the websocket update feed.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/smarttherm/fglair-smart/internal/datalog"
	"github.com/smarttherm/fglair-smart/internal/schedule"
	"github.com/smarttherm/fglair-smart/internal/sensors"
	"github.com/smarttherm/fglair-smart/internal/smart"
	"github.com/smarttherm/fglair-smart/internal/weather"
	"golang.org/x/sync/errgroup"
)

// Engine is the program engine surface the API exposes.
type Engine interface {
	GetProgram() smart.Program
	GetDevices() sensors.Devices
	GetState() smart.State
	GetSchedule(name string) ([]schedule.Entry, error)
	SetSchedule(name string, entries []schedule.Entry)
	SetScheduleTo(name string) error
	CopyScheduleDay(name string, from, to time.Weekday) error
	PauseProgram()
	ResumeProgram()
	SetAutoAway(patch smart.AutoAwayPatch)
	SetEco(patch smart.EcoPatch)
	SetAirClean(patch smart.AirCleanPatch)
	Subscribe() chan smart.Update
	Unsubscribe(ch chan smart.Update)
}

var _ Engine = &smart.Smart{}

// History provides recorded samples for charting. It is optional; without
// one the history endpoints return 404.
type History interface {
	ProgramHistory(ctx context.Context, from, to time.Time) ([]datalog.ProgramSample, error)
	RoomHistory(ctx context.Context, room string, from, to time.Time) ([]datalog.RoomSample, error)
}

// Weather provides the latest outside conditions. Optional, like History.
type Weather interface {
	Get() (weather.Observation, bool)
}

// Server routes API requests to the engine and pushes engine updates to
// websocket clients. It implements http.Handler; Run drives the websocket
// side.
type Server struct {
	engine  Engine
	history History
	weather Weather
	router  *mux.Router
	hub     *hub
	logger  *slog.Logger
}

func New(engine Engine, history History, weather Weather, logger *slog.Logger) *Server {
	s := Server{
		engine:  engine,
		history: history,
		weather: weather,
		router:  mux.NewRouter(),
		hub:     newHub(logger.With("component", "websocket")),
		logger:  logger,
	}
	s.setupRoutes()
	return &s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/program", s.handleGetProgram).Methods(http.MethodGet)
	api.HandleFunc("/program/pause", s.handlePause).Methods(http.MethodPost)
	api.HandleFunc("/program/resume", s.handleResume).Methods(http.MethodPost)
	api.HandleFunc("/devices", s.handleGetDevices).Methods(http.MethodGet)
	api.HandleFunc("/schedules", s.handleGetSchedules).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{name}", s.handleGetSchedule).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{name}", s.handlePutSchedule).Methods(http.MethodPut)
	api.HandleFunc("/schedules/{name}/activate", s.handleActivateSchedule).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{name}/copyday", s.handleCopyDay).Methods(http.MethodPost)
	api.HandleFunc("/settings/autoaway", s.handleGetAutoAway).Methods(http.MethodGet)
	api.HandleFunc("/settings/autoaway", s.handlePatchAutoAway).Methods(http.MethodPatch)
	api.HandleFunc("/settings/eco", s.handleGetEco).Methods(http.MethodGet)
	api.HandleFunc("/settings/eco", s.handlePatchEco).Methods(http.MethodPatch)
	api.HandleFunc("/settings/airclean", s.handleGetAirClean).Methods(http.MethodGet)
	api.HandleFunc("/settings/airclean", s.handlePatchAirClean).Methods(http.MethodPatch)
	api.HandleFunc("/weather", s.handleWeather).Methods(http.MethodGet)
	api.HandleFunc("/history/program", s.handleProgramHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/rooms/{room}", s.handleRoomHistory).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run broadcasts engine updates to websocket clients until the context is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Debug("started")
	defer s.logger.Debug("stopped")

	var g errgroup.Group
	g.Go(func() error { return s.hub.run(ctx) })
	g.Go(func() error {
		ch := s.engine.Subscribe()
		defer s.engine.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return nil
			case update := <-ch:
				s.hub.broadcast(update)
			}
		}
	})
	return g.Wait()
}
