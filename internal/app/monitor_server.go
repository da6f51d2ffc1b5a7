package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"auto-trade/internal/fault"
	"auto-trade/internal/monitor"
)

const maxListLimit = 1000

type startRequest struct {
	Symbol string `json:"symbol"`
}

type orderRequest struct {
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// newMonitorHandler 注册运维接口。手动周期运行在 ctx 上，不随请求断开而取消。
func newMonitorHandler(ctx context.Context, ctrl *Controller, reporter *Reporter, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &monitorHandler{base: ctx, ctrl: ctrl, reporter: reporter, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", h.status)
	mux.HandleFunc("POST /start", h.start)
	mux.HandleFunc("POST /stop", h.stop)
	mux.HandleFunc("POST /cycle", h.cycle)
	mux.HandleFunc("GET /trades", h.trades)
	mux.HandleFunc("GET /stats", h.stats)
	mux.HandleFunc("GET /events", h.events)
	mux.HandleFunc("GET /indicators", h.indicators)
	mux.HandleFunc("POST /orders", h.order)
	mux.HandleFunc("POST /liquidate", h.liquidate)
	return mux
}

type monitorHandler struct {
	base     context.Context
	ctrl     *Controller
	reporter *Reporter
	logger   *zap.Logger
}

func (h *monitorHandler) status(w http.ResponseWriter, r *http.Request) {
	report, err := h.reporter.Status(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *monitorHandler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, fault.Constraint("app.start", "请求体格式错误: %v", err))
			return
		}
	}
	st, err := h.ctrl.Start(r.Context(), req.Symbol)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *monitorHandler) stop(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.Stop(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *monitorHandler) cycle(w http.ResponseWriter, r *http.Request) {
	result := h.ctrl.RunCycle(h.base)
	code := http.StatusOK
	switch result.Outcome {
	case OutcomeBusy:
		code = http.StatusConflict
	case OutcomeStopped:
		code = http.StatusBadRequest
	}
	h.writeJSON(w, code, result)
}

func (h *monitorHandler) trades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := strings.ToUpper(strings.TrimSpace(q.Get("symbol")))
	report, err := h.reporter.Trades(r.Context(), symbol, parseLimit(q.Get("limit"), 0))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *monitorHandler) stats(w http.ResponseWriter, r *http.Request) {
	report, err := h.reporter.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *monitorHandler) events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ := monitor.EntryType(strings.ToLower(strings.TrimSpace(q.Get("type"))))
	report, err := h.reporter.Events(r.Context(), typ, parseLimit(q.Get("limit"), 200))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *monitorHandler) indicators(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := h.reporter.Indicators(r.Context(),
		strings.ToUpper(strings.TrimSpace(q.Get("symbol"))),
		strings.TrimSpace(q.Get("interval")),
		parseLimit(q.Get("limit"), 0),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *monitorHandler) order(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, fault.Constraint("app.order", "请求体格式错误: %v", err))
		return
	}
	res, err := h.ctrl.ManualOrder(r.Context(), req.Side, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *monitorHandler) liquidate(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.Liquidate(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if res == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"liquidated": false})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"liquidated": true, "result": res})
}

func (h *monitorHandler) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("写入监控响应失败", zap.Error(err))
	}
}

func (h *monitorHandler) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrCycleInFlight):
		code = http.StatusConflict
	case fault.Is(err, fault.KindConstraint):
		code = http.StatusBadRequest
	case fault.Is(err, fault.KindPersistence):
		code = http.StatusServiceUnavailable
	case fault.Is(err, fault.KindUpstream):
		code = http.StatusBadGateway
	case fault.Is(err, fault.KindData):
		code = http.StatusUnprocessableEntity
	}
	if code >= http.StatusInternalServerError {
		h.logger.Error("运维接口请求失败", zap.Int("status", code), zap.Error(err))
	}
	h.writeJSON(w, code, errorResponse{Error: err.Error(), Kind: string(fault.KindOf(err))})
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	if v > maxListLimit {
		v = maxListLimit
	}
	return v
}

func startMonitorServer(ctx context.Context, handler http.Handler, port int, logger *zap.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("关闭监控服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("监控服务异常", zap.Error(err))
		}
	}()

	logger.Info("监控接口已启动", zap.String("addr", addr))
	return nil
}
