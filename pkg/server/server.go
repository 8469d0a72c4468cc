package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nikogura/cv-tailor/pkg/cv"
	"github.com/nikogura/cv-tailor/pkg/generator"
	"github.com/nikogura/cv-tailor/pkg/jd"
	"github.com/nikogura/cv-tailor/pkg/llm"
	"github.com/nikogura/cv-tailor/pkg/prompt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Prompts     prompt.Set
	Concurrency int
	Provider    string
	Model       string
	Logger      *logrus.Logger
}

// Server exposes tailoring over HTTP.
type Server struct {
	gateway llm.Gateway
	opts    Options
	logger  *logrus.Logger
	router  *gin.Engine
}

// TailorRequest is the body of POST /api/v1/tailor. Either the raw posting
// text or an already parsed job description must be given.
type TailorRequest struct {
	CV             cv.Document     `json:"cv"`
	JobDescription string          `json:"jobDescription" binding:"required_without=Job"`
	Job            *jd.Description `json:"job,omitempty"`
	Sequential     bool            `json:"sequential,omitempty"`
}

// TailorResponse carries the working document and the run's ledger.
type TailorResponse struct {
	CV         cv.Document      `json:"cv"`
	Ledger     generator.Ledger `json:"ledger"`
	ParseUsage llm.Usage        `json:"parseUsage"`
	Total      llm.Usage        `json:"total"`
}

// ErrorBody is the error object of a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Section string `json:"section,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// New creates a server. Zero-valued prompts mean the built-in set.
func New(gateway llm.Gateway, opts Options) (s *Server, err error) {
	if gateway == nil {
		err = errors.New("completion gateway is required")
		return s, err
	}

	if opts.Prompts == (prompt.Set{}) {
		opts.Prompts = prompt.DefaultSet()
	}

	err = opts.Prompts.Validate()
	if err != nil {
		return s, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s = &Server{
		gateway: gateway,
		opts:    opts,
		logger:  logger,
	}
	s.router = s.newRouter()

	return s, err
}

func (s *Server) newRouter() (r *gin.Engine) {
	r = gin.New()

	r.Use(
		RequestID(),
		Logging(s.logger),
		Recovery(s.logger),
	)

	api := r.Group("/api/v1")
	api.GET("/health", s.health)
	api.POST("/tailor", s.tailor)

	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() (handler http.Handler) {
	handler = s.router
	return handler
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) (err error) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.WithField("addr", addr).Info("api server listening")

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
			return err
		}
		err = errors.Wrap(err, "server error")
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		err = errors.Wrap(err, "failed to shut down server")
		return err
	}

	return err
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) tailor(c *gin.Context) {
	var req TailorRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	err = req.CV.Validate()
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_cv", err.Error())
		return
	}

	ctx := c.Request.Context()

	var job jd.Description
	var parseUsage llm.Usage
	if req.Job != nil {
		job = req.Job.Normalized()
	} else {
		if strings.TrimSpace(req.JobDescription) == "" {
			respondError(c, http.StatusBadRequest, "bad_request", "job description text is empty")
			return
		}

		job, parseUsage, err = jd.Parse(ctx, s.gateway, s.opts.Prompts, req.JobDescription)
		if err != nil {
			s.respondFailure(c, err)
			return
		}
	}

	opts := []generator.Option{
		generator.WithPrompts(s.opts.Prompts),
		generator.WithConcurrency(s.opts.Concurrency),
		generator.WithLogger(s.logger),
		generator.WithProvider(s.opts.Provider, s.opts.Model),
	}
	if req.Sequential {
		opts = append(opts, generator.WithSequential())
	}

	var gen *generator.Generator
	gen, err = generator.New(s.gateway, req.CV, job, opts...)
	if err != nil {
		s.respondFailure(c, err)
		return
	}

	err = gen.GenerateAll(ctx)
	if err != nil {
		s.respondFailure(c, err)
		return
	}

	ledger := gen.Ledger()
	c.JSON(http.StatusOK, TailorResponse{
		CV:         gen.Working(),
		Ledger:     ledger,
		ParseUsage: parseUsage,
		Total:      ledger.Total().Add(parseUsage),
	})
}

// respondFailure maps a tailoring failure to a status code.
func (s *Server) respondFailure(c *gin.Context, err error) {
	_ = c.Error(err)

	var section string
	var sectionErr *generator.SectionError
	if errors.As(err, &sectionErr) {
		section = sectionErr.Section
	}

	status, code := classify(err)
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: err.Error(),
			Section: section,
		},
	})
}

func classify(err error) (status int, code string) {
	switch {
	case errors.Is(err, llm.ErrGateway):
		status, code = http.StatusBadGateway, "gateway_error"
	case errors.Is(err, llm.ErrValidation):
		status, code = http.StatusUnprocessableEntity, "invalid_completion"
	case errors.Is(err, llm.ErrEmptyPayload):
		status, code = http.StatusUnprocessableEntity, "empty_completion"
	case errors.Is(err, prompt.ErrMalformedTemplate):
		status, code = http.StatusInternalServerError, "malformed_template"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	default:
		status, code = http.StatusInternalServerError, "internal_error"
	}
	return status, code
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
		},
	})
}
