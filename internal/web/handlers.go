package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/smarttherm/fglair-smart/internal/schedule"
	"github.com/smarttherm/fglair-smart/internal/smart"
)

func (s *Server) writeJSON(w http.ResponseWriter, response any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("failed to encode response", slog.Any("err", err))
	}
}

func (s *Server) handleGetProgram(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.engine.GetProgram())
}

func (s *Server) handleGetDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.engine.GetDevices())
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.engine.PauseProgram()
	s.writeJSON(w, s.engine.GetProgram())
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.engine.ResumeProgram()
	s.writeJSON(w, s.engine.GetProgram())
}

func (s *Server) handleGetSchedules(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.engine.GetState().Schedule)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.GetSchedule(mux.Vars(r)["name"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, entries)
}

func (s *Server) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	var entries []schedule.Entry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := mux.Vars(r)["name"]
	s.engine.SetSchedule(name, entries)
	entries, _ = s.engine.GetSchedule(name)
	s.writeJSON(w, entries)
}

func (s *Server) handleActivateSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SetScheduleTo(mux.Vars(r)["name"]); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.engine.GetProgram())
}

func (s *Server) handleCopyDay(w http.ResponseWriter, r *http.Request) {
	var request struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	from, err := schedule.ParseWeekday(request.From)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := schedule.ParseWeekday(request.To)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name := mux.Vars(r)["name"]
	if err = s.engine.CopyScheduleDay(name, from, to); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	entries, _ := s.engine.GetSchedule(name)
	s.writeJSON(w, entries)
}

func (s *Server) handleWeather(w http.ResponseWriter, _ *http.Request) {
	if s.weather == nil {
		http.Error(w, "weather not enabled", http.StatusNotFound)
		return
	}
	observation, ok := s.weather.Get()
	if !ok {
		http.Error(w, "no observation yet", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, observation)
}

// historyRange parses the optional from/to query parameters (RFC 3339),
// defaulting to the last 24 hours.
func historyRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	from, to := now.Add(-24*time.Hour), now
	if v := r.URL.Query().Get("from"); v != "" {
		var err error
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, fmt.Errorf("invalid from: %w", err)
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		var err error
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			return from, to, fmt.Errorf("invalid to: %w", err)
		}
	}
	return from, to, nil
}

func (s *Server) handleProgramHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history not enabled", http.StatusNotFound)
		return
	}
	from, to, err := historyRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	samples, err := s.history.ProgramHistory(r.Context(), from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, samples)
}

func (s *Server) handleRoomHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history not enabled", http.StatusNotFound)
		return
	}
	from, to, err := historyRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	samples, err := s.history.RoomHistory(r.Context(), mux.Vars(r)["room"], from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, samples)
}

func (s *Server) handleGetAutoAway(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.engine.GetState().AutoAway)
}

func (s *Server) handlePatchAutoAway(w http.ResponseWriter, r *http.Request) {
	var patch smart.AutoAwayPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.engine.SetAutoAway(patch)
	s.writeJSON(w, s.engine.GetState().AutoAway)
}

func (s *Server) handleGetEco(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.engine.GetState().Eco)
}

func (s *Server) handlePatchEco(w http.ResponseWriter, r *http.Request) {
	var patch smart.EcoPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.engine.SetEco(patch)
	s.writeJSON(w, s.engine.GetState().Eco)
}

func (s *Server) handleGetAirClean(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.engine.GetState().AirClean)
}

func (s *Server) handlePatchAirClean(w http.ResponseWriter, r *http.Request) {
	var patch smart.AirCleanPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.engine.SetAirClean(patch)
	s.writeJSON(w, s.engine.GetState().AirClean)
}
