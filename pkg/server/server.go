// Package server exposes instruments over a JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/lumasullo/lantz/pkg/lantz"
	"github.com/lumasullo/lantz/pkg/state"
	"github.com/lumasullo/lantz/pkg/units"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const ApiPrefix = "/api/instruments"

// Value is the wire form of feature values, action arguments and results
type Value struct {
	Value any    `json:"value"`
	Units string `json:"units,omitempty"`
}

// Entry is one key of an indexed feature
type Entry struct {
	Key   any    `json:"key"`
	Value any    `json:"value"`
	Units string `json:"units,omitempty"`
}

// Invocation is the request body of an action
type Invocation struct {
	Args []Value `json:"args"`
}

// InstrumentInfo describes one instrument and its descriptors
type InstrumentInfo struct {
	Name        string             `json:"name"`
	Descriptors []lantz.Descriptor `json:"descriptors"`
}

// VersionInfo is returned by /version
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// SetPoints is implemented by the set point journal
type SetPoints interface {
	SetPoints(instrument string) ([]state.SetPoint, error)
}

type Server struct {
	*mux.Router
	instruments map[string]lantz.Instrument
	setpoints   SetPoints
	version     VersionInfo
}

// New routes requests to instruments. setpoints may be nil, in which case
// the setpoints endpoint answers 404. Metrics are served from gatherer.
func New(instruments []lantz.Instrument, setpoints SetPoints, gatherer prometheus.Gatherer, version VersionInfo) (*Server, error) {
	s := &Server{
		Router:      mux.NewRouter(),
		instruments: make(map[string]lantz.Instrument),
		setpoints:   setpoints,
		version:     version,
	}
	for _, inst := range instruments {
		if _, ok := s.instruments[inst.Name()]; ok {
			return nil, fmt.Errorf("duplicate instrument %q", inst.Name())
		}
		s.instruments[inst.Name()] = inst
	}

	s.HandleFunc("/version", s.versionInfo).Methods("GET")
	s.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.HandleFunc(ApiPrefix, s.listInstruments).Methods("GET")
	s.HandleFunc(ApiPrefix+"/{inst}", s.describe).Methods("GET")
	s.HandleFunc(ApiPrefix+"/{inst}/feats/{feat}", s.getFeat).Methods("GET")
	s.HandleFunc(ApiPrefix+"/{inst}/feats/{feat}", s.setFeat).Methods("POST")
	s.HandleFunc(ApiPrefix+"/{inst}/feats/{feat}/{key}", s.getKey).Methods("GET")
	s.HandleFunc(ApiPrefix+"/{inst}/feats/{feat}/{key}", s.setKey).Methods("POST")
	s.HandleFunc(ApiPrefix+"/{inst}/actions/{action}", s.invoke).Methods("POST")
	s.HandleFunc(ApiPrefix+"/{inst}/setpoints", s.getSetPoints).Methods("GET")
	return s, nil
}

// Handler wraps the router with request logging and panic recovery
func (s *Server) Handler() http.Handler {
	logger := log.StandardLogger()
	h := handlers.RecoveryHandler(handlers.RecoveryLogger(logger), handlers.PrintRecoveryStack(true))(s.Router)
	return handlers.LoggingHandler(logger.WriterLevel(log.DebugLevel), h)
}

// errorKinds names each descriptor error for error bodies, in match order
var errorKinds = []struct {
	kind   string
	err    error
	status int
}{
	{"not_found", lantz.ErrNotFound, http.StatusNotFound},
	{"unknown_key", lantz.ErrUnknownKey, http.StatusNotFound},
	{"out_of_range", lantz.ErrOutOfRange, http.StatusBadRequest},
	{"incompatible_unit", lantz.ErrIncompatibleUnit, http.StatusBadRequest},
	{"unknown_unit", units.ErrUnknownUnit, http.StatusBadRequest},
	{"unmapped_value", lantz.ErrUnmappedValue, http.StatusBadRequest},
	{"invalid_argument", lantz.ErrInvalidArgument, http.StatusBadRequest},
	{"read_only", lantz.ErrReadOnly, http.StatusMethodNotAllowed},
	{"invalid_state", lantz.ErrInvalidState, http.StatusConflict},
	{"finalized", lantz.ErrFinalized, http.StatusServiceUnavailable},
	{"timeout", lantz.ErrTimeout, http.StatusGatewayTimeout},
	{"transport", lantz.ErrTransport, http.StatusBadGateway},
	{"decode", lantz.ErrDecode, http.StatusBadGateway},
}

func classify(err error) (string, int) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind, k.status
		}
	}
	return "", http.StatusInternalServerError
}

// StatusCode maps descriptor errors to HTTP status codes
func StatusCode(err error) int {
	_, code := classify(err)
	return code
}

// ErrorKind names the descriptor error class of err, or "" if it has none
func ErrorKind(err error) string {
	kind, _ := classify(err)
	return kind
}

// KindError returns the descriptor error named by kind, or nil
func KindError(kind string) error {
	for _, k := range errorKinds {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	e := json.NewEncoder(w)
	e.SetIndent("", "    ")
	if err := e.Encode(v); err != nil {
		log.Warnf("Encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind, code := classify(err)
	if code == http.StatusInternalServerError {
		log.Errorf("Request failed: %v", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error(), Kind: kind})
}

// ToValue converts a descriptor value to its wire form
func ToValue(v any) Value {
	if q, ok := v.(units.Quantity); ok {
		return Value{Value: q.Magnitude, Units: q.Unit}
	}
	return Value{Value: v}
}

// FromValue converts a wire value back; a value with units becomes a quantity
func FromValue(v Value) (any, error) {
	if v.Units == "" {
		return v.Value, nil
	}
	m, ok := v.Value.(float64)
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T) with units %q is not a number", lantz.ErrInvalidArgument, v.Value, v.Value, v.Units)
	}
	if !units.Known(v.Units) {
		return nil, fmt.Errorf("%w: %q", units.ErrUnknownUnit, v.Units)
	}
	return units.Q(m, v.Units), nil
}

// ParseKey turns a key from the url into an int when it is numeric
func ParseKey(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return s
}

func decode(r *http.Request, v any) error {
	d := json.NewDecoder(r.Body)
	d.UseNumber()
	if err := d.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %w", lantz.ErrInvalidArgument, err)
	}
	return nil
}

// numbers restores json.Number values to int when whole and float64 otherwise
func numbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = numbers(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = numbers(t[k])
		}
		return t
	}
	return v
}

func fromWire(v Value) (any, error) {
	v.Value = numbers(v.Value)
	if v.Units != "" {
		if i, ok := v.Value.(int); ok {
			v.Value = float64(i)
		}
	}
	return FromValue(v)
}

func (s *Server) instrument(w http.ResponseWriter, r *http.Request) (lantz.Instrument, bool) {
	name := mux.Vars(r)["inst"]
	inst, ok := s.instruments[name]
	if !ok {
		writeError(w, fmt.Errorf("%w: instrument %s", lantz.ErrNotFound, name))
		return nil, false
	}
	return inst, true
}

func (s *Server) versionInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.version)
}

func (s *Server) listInstruments(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.instruments))
	for name := range s.instruments {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) describe(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instrument(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, InstrumentInfo{Name: inst.Name(), Descriptors: inst.Describe()})
}

func descriptor(inst lantz.Instrument, name string) (lantz.Descriptor, bool) {
	for _, d := range inst.Describe() {
		if d.Name == name {
			return d, true
		}
	}
	return lantz.Descriptor{}, false
}

// getFeat reads a feature, or every key of an indexed feature
func (s *Server) getFeat(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instrument(w, r)
	if !ok {
		return
	}
	name := mux.Vars(r)["feat"]
	d, ok := descriptor(inst, name)
	if !ok || d.Kind == lantz.KindAction {
		writeError(w, fmt.Errorf("%w: feat %s.%s", lantz.ErrNotFound, inst.Name(), name))
		return
	}

	if d.Kind == lantz.KindFeat {
		v, err := inst.Get(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ToValue(v))
		return
	}

	entries := make([]Entry, 0, len(d.Keys))
	for _, k := range d.Keys {
		v, err := inst.GetIndexed(name, k)
		if err != nil {
			writeError(w, err)
			return
		}
		wv := ToValue(v)
		entries = append(entries, Entry{Key: k, Value: wv.Value, Units: wv.Units})
	}
	writeJSON(w, http.StatusOK, entries)
}

// setFeat writes a feature from a Value body, or several keys of an indexed
// feature from a list of entries
func (s *Server) setFeat(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instrument(w, r)
	if !ok {
		return
	}
	name := mux.Vars(r)["feat"]
	if d, ok := descriptor(inst, name); ok && d.Kind == lantz.KindDictFeat {
		s.setMany(w, r, inst, name)
		return
	}

	var body Value
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	v, err := fromWire(body)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := inst.Set(name, v); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "OK")
}

func (s *Server) setMany(w http.ResponseWriter, r *http.Request, inst lantz.Instrument, name string) {
	var body []Entry
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	keys := make([]any, len(body))
	values := make([]any, len(body))
	for i, e := range body {
		keys[i] = numbers(e.Key)
		v, err := fromWire(Value{Value: e.Value, Units: e.Units})
		if err != nil {
			writeError(w, err)
			return
		}
		values[i] = v
	}
	if err := inst.SetIndexedMany(name, keys, values); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "OK")
}

func (s *Server) getKey(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instrument(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	v, err := inst.GetIndexed(vars["feat"], ParseKey(vars["key"]))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToValue(v))
}

func (s *Server) setKey(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instrument(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	var body Value
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	v, err := fromWire(body)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := inst.SetIndexed(vars["feat"], ParseKey(vars["key"]), v); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "OK")
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instrument(w, r)
	if !ok {
		return
	}
	// actions without arguments may be posted with an empty body
	var body Invocation
	if err := decode(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, err)
		return
	}
	args := make([]any, len(body.Args))
	for i, a := range body.Args {
		v, err := fromWire(a)
		if err != nil {
			writeError(w, err)
			return
		}
		args[i] = v
	}
	res, err := inst.Invoke(mux.Vars(r)["action"], args...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToValue(res))
}

func (s *Server) getSetPoints(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instrument(w, r)
	if !ok {
		return
	}
	if s.setpoints == nil {
		writeError(w, fmt.Errorf("%w: no set point journal", lantz.ErrNotFound))
		return
	}
	sps, err := s.setpoints.SetPoints(inst.Name())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sps)
}
