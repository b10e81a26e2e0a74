package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookproxy/internal/errs"
	"bookproxy/internal/generate"
	"bookproxy/internal/logger"
	"bookproxy/internal/opds"
	"bookproxy/internal/response"
	"bookproxy/internal/types"
)

const (
	maxGenerateBody = 2 << 20

	contentTypeOpds = "application/atom+xml;profile=opds-catalog;kind=acquisition; charset=utf-8"
	healthMessage   = "bookproxy is running"
)

type Catalogue interface {
	ListBooks(ctx context.Context, includeAll bool) ([]types.CatalogueEntry, error)
}

type Content interface {
	GetToc(ctx context.Context, bookURL string) ([]types.TocPart, error)
	GetChapter(ctx context.Context, bookURL, chapterId string) (*types.ChapterContent, error)
}

type PageFetcher interface {
	FetchURL(ctx context.Context, rawURL string, readerMode bool) (*types.ExternalPageExtract, error)
}

type Generator interface {
	Forward(ctx context.Context, req *generate.Request) (json.RawMessage, error)
}

// Routes wires the complete HTTP surface with its middleware.
func Routes(cat Catalogue, ct Content, pf PageFetcher, gen Generator, rr *response.Responder,
	allowedOrigins []string) http.Handler {

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger)
	r.Use(Metrics)
	r.Use(middleware.Recoverer)
	r.Use(CORS(allowedOrigins))

	r.Get("/", health(rr))
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/api", Handler(cat, ct, pf, gen, rr))
	r.Mount("/opds", OPDS(cat, rr))

	return r
}

func Handler(cat Catalogue, ct Content, pf PageFetcher, gen Generator, rr *response.Responder) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", health(rr))

	r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		req, err := generate.DecodeRequest(http.MaxBytesReader(w, r.Body, maxGenerateBody))
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		body, err := gen.Forward(r.Context(), req)
		if err != nil {
			var e *errs.Error
			if errors.As(err, &e) && e.Kind == errs.KindUpstream && e.UpstreamStatus != 0 {
				rr.RespondErrorStatus(w, r.Context(), e.UpstreamStatus, err)
				return
			}

			rr.RespondError(w, r.Context(), err)
			return
		}

		rr.SendRawJson(w, body)
	})

	r.Get("/books", func(w http.ResponseWriter, r *http.Request) {
		entries, err := cat.ListBooks(r.Context(), getBool("all", r))
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		if entries == nil {
			entries = make([]types.CatalogueEntry, 0)
		}

		rr.SendJson(w, r.Context(), entries)
	})

	r.Get("/toc", func(w http.ResponseWriter, r *http.Request) {
		parts, err := ct.GetToc(r.Context(), r.URL.Query().Get("bookUrl"))
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		if parts == nil {
			parts = make([]types.TocPart, 0)
		}

		rr.SendJson(w, r.Context(), parts)
	})

	r.Get("/chapter", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		chapter, err := ct.GetChapter(r.Context(), q.Get("bookUrl"), q.Get("chapterId"))
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		rr.SendJson(w, r.Context(), chapter)
	})

	r.Get("/fetch-url", func(w http.ResponseWriter, r *http.Request) {
		page, err := pf.FetchURL(r.Context(), r.URL.Query().Get("url"), getBool("reader", r))
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		rr.SendJson(w, r.Context(), page)
	})

	return r
}

// OPDS serves the filtered catalogue as an acquisition feed for e-reader apps.
func OPDS(cat Catalogue, rr *response.Responder) http.Handler {
	r := chi.NewRouter()

	r.Get("/books", func(w http.ResponseWriter, r *http.Request) {
		entries, err := cat.ListBooks(r.Context(), false)
		if err != nil {
			rr.RespondError(w, r.Context(), err)
			return
		}

		bs, err := opds.CatalogueFeed(entries, r.URL.RequestURI(), time.Now())
		if err != nil {
			rr.RespondAndLogError(w, r.Context(), err)
			return
		}

		rr.SendXml(w, contentTypeOpds, bs)
	})

	return r
}

func health(rr *response.Responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rr.SendJson(w, r.Context(), struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}{Status: "ok", Message: healthMessage})
	}
}

func getBool(key string, r *http.Request) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
