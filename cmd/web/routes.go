package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"

	"github.com/AdamBeresnev/kart-cup/internal/bracket"
	"github.com/AdamBeresnev/kart-cup/internal/config"
	"github.com/AdamBeresnev/kart-cup/internal/httputil"
	"github.com/AdamBeresnev/kart-cup/internal/middleware"
	"github.com/AdamBeresnev/kart-cup/internal/racing"
	"github.com/AdamBeresnev/kart-cup/internal/service"
	"github.com/AdamBeresnev/kart-cup/internal/store"
	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/markbates/goth/gothic"
)

func newRouter(sessionManager *scs.SessionManager, database *sqlx.DB, cfg *config.Config, locks *service.StageLocks, rng *rand.Rand) http.Handler {
	userStore := store.NewUserStore(database)
	tournamentStore := store.NewTournamentStore(database)
	stageStore := store.NewStageStore(database)
	matchStore := store.NewMatchStore(database)
	scoreStore := store.NewScoreStore(database)
	courseStore := store.NewCourseStore(database)

	userService := service.NewUserService(database, userStore)
	tournamentService := service.NewTournamentService(database, tournamentStore, stageStore)
	qualService := service.NewQualificationService(database, stageStore, cfg.Rules, nil)
	phaseService := service.NewPhaseService(database, stageStore, cfg.Rules, locks)
	courseService := service.NewCourseService(database, courseStore, cfg.Rules, locks, rng)
	bracketService := service.NewBracketService(database, matchStore, cfg.Rules)
	matchService := service.NewMatchService(database, matchStore, cfg.Rules)
	rankingService := service.NewRankingService(database, stageStore, matchStore, tournamentStore, scoreStore, cfg.Rules, nil)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))
	r.Use(sessionManager.LoadAndSave)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessionManager, userStore))

		r.Get("/tournaments", func(w http.ResponseWriter, r *http.Request) {
			tournaments, err := tournamentService.GetTournamentsForUser(r.Context())
			if err != nil {
				httputil.InternalServerError(w, "Failed to get tournaments", err)
				return
			}
			httputil.JSON(w, http.StatusOK, tournaments)
		})

		r.Post("/tournaments", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Name    string   `json:"name"`
				Players []string `json:"players"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			roster := make([]service.PlayerInput, 0, len(req.Players))
			for _, name := range req.Players {
				if name != "" {
					roster = append(roster, service.PlayerInput{Name: name})
				}
			}
			id, err := tournamentService.CreateTournament(r.Context(), req.Name, roster)
			if err != nil {
				writeEngineError(w, "Failed to create tournament", err)
				return
			}
			httputil.JSON(w, http.StatusCreated, map[string]string{"id": id.String()})
		})

		r.Get("/tournaments/{id}", func(w http.ResponseWriter, r *http.Request) {
			data, err := tournamentService.GetTournamentData(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeEngineError(w, "Failed to get tournament", err)
				return
			}
			httputil.JSON(w, http.StatusOK, data)
		})

		r.Post("/tournaments/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			if err := tournamentService.CompleteTournament(r.Context(), tournamentID); err != nil {
				writeEngineError(w, "Failed to complete tournament", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/tournaments/{id}/qualification/times", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			var req struct {
				PlayerID uuid.UUID `json:"player_id"`
				Course   string    `json:"course"`
				Time     string    `json:"time"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			if err := qualService.SubmitTime(r.Context(), tournamentID, req.PlayerID, req.Course, req.Time); err != nil {
				writeEngineError(w, "Failed to submit time", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/tournaments/{id}/qualification/matches", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			var req struct {
				Mode     racing.Mode    `json:"mode"`
				Pairings [][2]uuid.UUID `json:"pairings"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			mode, ok := parseMode(w, string(req.Mode))
			if !ok {
				return
			}
			matches, err := tournamentService.ScheduleQualMatches(r.Context(), tournamentID, mode, req.Pairings)
			if err != nil {
				writeEngineError(w, "Failed to schedule matches", err)
				return
			}
			httputil.JSON(w, http.StatusCreated, matches)
		})

		r.Post("/qual-matches/{id}/result", func(w http.ResponseWriter, r *http.Request) {
			matchID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			var req struct {
				Player1Rounds int `json:"player_1_rounds"`
				Player2Rounds int `json:"player_2_rounds"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			if err := tournamentService.ReportQualMatch(r.Context(), matchID, req.Player1Rounds, req.Player2Rounds); err != nil {
				writeEngineError(w, "Failed to report match result", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/tournaments/{id}/stages/{stage}/promote", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			result, err := phaseService.PromoteStage(r.Context(), tournamentID, racing.Stage(chi.URLParam(r, "stage")))
			if err != nil {
				writeEngineError(w, "Failed to promote stage", err)
				return
			}
			httputil.JSON(w, http.StatusOK, result)
		})

		r.Post("/tournaments/{id}/stages/{stage}/course", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			course, err := courseService.PickCourse(r.Context(), tournamentID, racing.Stage(chi.URLParam(r, "stage")))
			if err != nil {
				writeEngineError(w, "Failed to pick course", err)
				return
			}
			httputil.JSON(w, http.StatusOK, course)
		})

		r.Post("/tournaments/{id}/stages/{stage}/results", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			var req struct {
				Course  string                 `json:"course"`
				Results []service.CourseResult `json:"results"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			outcome, err := phaseService.ProcessCourseResults(r.Context(), tournamentID, racing.Stage(chi.URLParam(r, "stage")), req.Course, req.Results)
			if err != nil {
				writeEngineError(w, "Failed to process course results", err)
				return
			}
			httputil.JSON(w, http.StatusOK, outcome)
		})

		r.Post("/tournaments/{id}/stages/{stage}/players/{playerID}/lives", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			playerID, ok := parseID(w, chi.URLParam(r, "playerID"))
			if !ok {
				return
			}
			var req struct {
				Lives int `json:"lives"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			if err := phaseService.AdminSetLives(r.Context(), tournamentID, playerID, racing.Stage(chi.URLParam(r, "stage")), req.Lives); err != nil {
				writeEngineError(w, "Failed to set lives", err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/tournaments/{id}/brackets/{mode}", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			var req struct {
				Seeds []struct {
					PlayerID       uuid.UUID `json:"player_id"`
					PlayerName     string    `json:"player_name"`
					QualifyingRank int       `json:"qualifying_rank"`
				} `json:"seeds"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			seeds := make([]bracket.Seed, 0, len(req.Seeds))
			for _, s := range req.Seeds {
				seeds = append(seeds, bracket.Seed{PlayerID: s.PlayerID, PlayerName: s.PlayerName, QualifyingRank: s.QualifyingRank})
			}
			mode, ok := parseMode(w, chi.URLParam(r, "mode"))
			if !ok {
				return
			}
			matches, err := bracketService.GenerateBracket(r.Context(), tournamentID, mode, seeds)
			if err != nil {
				writeEngineError(w, "Failed to generate bracket", err)
				return
			}
			httputil.JSON(w, http.StatusCreated, service.PrepareBracketLayout(matches))
		})

		r.Get("/tournaments/{id}/brackets/{mode}", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			mode, ok := parseMode(w, chi.URLParam(r, "mode"))
			if !ok {
				return
			}
			matches, err := matchStore.GetMatches(r.Context(), tournamentID, mode)
			if err != nil {
				writeEngineError(w, "Failed to get bracket", err)
				return
			}
			httputil.JSON(w, http.StatusOK, service.PrepareBracketLayout(matches))
		})

		r.Post("/matches/{id}/games", func(w http.ResponseWriter, r *http.Request) {
			matchID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			var req struct {
				WinnerID uuid.UUID `json:"winner_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.BadRequest(w, "Invalid request body", err)
				return
			}
			match, err := matchService.ReportGame(r.Context(), matchID, req.WinnerID)
			if err != nil {
				writeEngineError(w, "Failed to report game", err)
				return
			}
			httputil.JSON(w, http.StatusOK, match)
		})

		r.Post("/tournaments/{id}/ranking", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			scores, err := rankingService.RecomputeOverall(r.Context(), tournamentID)
			if err != nil {
				writeEngineError(w, "Failed to recompute ranking", err)
				return
			}
			httputil.JSON(w, http.StatusOK, scores)
		})

		r.Get("/tournaments/{id}/ranking", func(w http.ResponseWriter, r *http.Request) {
			tournamentID, ok := parseID(w, chi.URLParam(r, "id"))
			if !ok {
				return
			}
			scores, err := scoreStore.ListScores(r.Context(), tournamentID)
			if err != nil {
				writeEngineError(w, "Failed to get ranking", err)
				return
			}
			httputil.JSON(w, http.StatusOK, scores)
		})
	})

	r.Get("/auth/{provider}", func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		r = r.WithContext(context.WithValue(r.Context(), "provider", provider))

		gothic.BeginAuthHandler(w, r)
	})

	r.Get("/auth/{provider}/callback", func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		r = r.WithContext(context.WithValue(r.Context(), "provider", provider))

		gothUser, err := gothic.CompleteUserAuth(w, r)
		if err != nil {
			httputil.BadRequest(w, "Authentication failure", err)
			return
		}

		user, err := userService.FindOrCreateUserByProvider(r.Context(), gothUser)
		if err != nil {
			httputil.InternalServerError(w, "Failed to find or create user", err)
			return
		}

		sessionManager.Put(r.Context(), "userID", user.ID.String())
		httputil.JSON(w, http.StatusOK, user)
	})

	r.Post("/auth/guest", func(w http.ResponseWriter, r *http.Request) {
		user, err := userService.EnsureGuestUser(r.Context())
		if err != nil {
			httputil.InternalServerError(w, "Failed to login as guest", err)
			return
		}

		sessionManager.Put(r.Context(), "userID", user.ID.String())
		httputil.JSON(w, http.StatusOK, user)
	})

	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		sessionManager.Destroy(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func parseMode(w http.ResponseWriter, raw string) (racing.Mode, bool) {
	for _, m := range racing.AllModes {
		if racing.Mode(raw) == m {
			return m, true
		}
	}
	httputil.BadRequest(w, "Unknown mode", nil)
	return "", false
}

func parseID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.BadRequest(w, "Invalid ID", err)
		return uuid.Nil, false
	}
	return id, true
}

// writeEngineError maps the engine's named conditions onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		httputil.NotFound(w, msg, err)
	case errors.Is(err, racing.ErrConflict):
		httputil.Conflict(w, "Conflicting update, try again", err)
	case errors.Is(err, racing.ErrInsufficientPlayers):
		httputil.UnprocessableEntity(w, err.Error(), err)
	case errors.Is(err, racing.ErrInvalidTime), errors.Is(err, racing.ErrUnknownCourse):
		httputil.BadRequest(w, err.Error(), err)
	default:
		httputil.InternalServerError(w, msg, err)
	}
}
