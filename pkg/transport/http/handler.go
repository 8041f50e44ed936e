package http

import (
	"bytes"
	"context"
	"io/ioutil"
	"math"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/countd/pkg/counter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	unknownErrorMessage = "An unknown error occurred"
	invalidBodyMessage  = "request body must be a JSON object"
)

// CounterService is what the http transport needs from the counter service.
type CounterService interface {
	Get(ctx context.Context, name string) (int64, error)
	Increment(ctx context.Context, name string) (int64, error)
	Set(ctx context.Context, name string, value int64) (int64, error)
}

type counterHandler struct {
	counters     CounterService
	logger       *logrus.Logger
	maxBodyBytes int64
}

type setRequest struct {
	Value jsoniter.RawMessage `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *counterHandler) handleGet(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.serve(w, r, func(ctx context.Context, name string) (int64, error) {
		return h.counters.Get(ctx, name)
	})
}

func (h *counterHandler) handleIncrement(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.serve(w, r, func(ctx context.Context, name string) (int64, error) {
		return h.counters.Increment(ctx, name)
	})
}

func (h *counterHandler) handleSet(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.serve(w, r, func(ctx context.Context, name string) (int64, error) {
		value, err := h.decodeSetRequest(w, r)
		if err != nil {
			return 0, err
		}
		return h.counters.Set(ctx, name, value)
	})
}

func (h *counterHandler) handleUnsupported(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(context.Context, string) (int64, error) {
		return 0, counter.ErrMethodNotAllowed
	})
}

// serve is the single boundary every request goes through: the counter name
// is validated before anything else, and every failure, panics included, is
// turned into a response.
func (h *counterHandler) serve(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, name string) (int64, error)) {
	defer func() {
		if rec := recover(); rec != nil {
			h.writeError(w, r, errors.Errorf("panic: %v", rec))
		}
	}()

	name, err := counter.ParseName(r.URL.EscapedPath())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	value, err := op(r.Context(), name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(strconv.FormatInt(value, 10)))
}

func (h *counterHandler) decodeSetRequest(w http.ResponseWriter, r *http.Request) (int64, error) {
	body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		return 0, counter.InvalidRequest(errors.Wrap(err, "could not read request body"))
	}

	var req setRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return 0, &counter.Error{Kind: counter.KindInvalidRequest, Message: invalidBodyMessage, Err: err}
	}

	value, err := parseValue(req.Value)
	if err != nil {
		return 0, counter.InvalidRequest(err)
	}

	return value, nil
}

// parseValue accepts JSON numbers with no fractional part that fit in an
// int64. Whole-number floats such as 100.0 or 1e2 are taken as integers.
func parseValue(raw []byte) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("value is required")
	}

	s := string(raw)
	value, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return value, nil
	}
	if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
		return 0, errors.Errorf("value %s is out of range", s)
	}

	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil {
		if numErr, ok := ferr.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return 0, errors.Errorf("value %s is out of range", s)
		}
		return 0, errors.New("value must be a number")
	}
	if f != math.Trunc(f) {
		return 0, errors.Errorf("value %s is not an integer", s)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errors.Errorf("value %s is out of range", s)
	}

	return int64(f), nil
}

func (h *counterHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := counter.KindOf(err)
	status, message := errorResponseFor(kind, err)

	entry := h.logger.WithFields(logrus.Fields{
		"request_id": requestIDFrom(r.Context()),
		"method":     r.Method,
		"kind":       kind.String(),
		"status":     status,
	}).WithError(err)

	switch kind {
	case counter.KindInvalidRequest, counter.KindMethodNotAllowed:
		entry.Debug("rejected counter request")
	case counter.KindStoreCorruption:
		entry.Warn("counter request failed")
	default:
		entry.Error("counter request failed")
	}

	if kind == counter.KindMethodNotAllowed {
		w.WriteHeader(status)
		return
	}

	payload, merr := json.Marshal(errorResponse{Error: message})
	if merr != nil {
		payload = []byte(`{"error":"` + unknownErrorMessage + `"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

func errorResponseFor(kind counter.Kind, err error) (int, string) {
	var ce *counter.Error
	message := unknownErrorMessage
	if errors.As(err, &ce) && ce.Message != "" {
		message = ce.Message
	}

	switch kind {
	case counter.KindInvalidRequest, counter.KindStoreCorruption:
		return http.StatusBadRequest, message
	case counter.KindMethodNotAllowed:
		return http.StatusMethodNotAllowed, ""
	case counter.KindStoreUnavailable:
		return http.StatusServiceUnavailable, "counter store unavailable"
	default:
		return http.StatusBadRequest, unknownErrorMessage
	}
}
