// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package integration

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// NewHandler builds the HTTP/JSON facade: a generic "invoke this named
// function with these integer arguments" endpoint plus a liveness probe.
// It has no notion of any particular XL program's domain; the function
// name is whatever the caller asks for, and the engine either has it or
// doesn't.
func NewHandler(e *Engine) http.Handler {
	router := httprouter.New()
	router.POST("/call/:function", withRequestID(e.handleCall))
	router.GET("/healthz", withRequestID(e.handleHealth))

	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)
}

type callRequest struct {
	Args []int64 `json:"args"`
}

type callResponse struct {
	RequestID string `json:"request_id"`
	Function  string `json:"function"`
	Result    int64  `json:"result"`
}

type errorResponse struct {
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

type idHandle func(http.ResponseWriter, *http.Request, httprouter.Params, string)

// withRequestID stamps every request with a UUID carried through both the
// response body and the access log, so a faulted VM call can be traced
// back to a specific request.
func withRequestID(h idHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := uuid.New().String()
		log.Printf("request %s: %s %s", id, r.Method, r.URL.Path)
		h(w, r, ps, id)
	}
}

func (e *Engine) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params, reqID string) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "request_id": reqID})
}

func (e *Engine) handleCall(w http.ResponseWriter, r *http.Request, ps httprouter.Params, reqID string) {
	fn := ps.ByName("function")

	var req callRequest
	if r.Body != nil {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeJSON(w, http.StatusBadRequest, errorResponse{RequestID: reqID, Error: err.Error()})
			return
		}
	}

	result, err := e.Call(fn, req.Args)
	if err != nil {
		log.Printf("request %s: call %s: %v", reqID, fn, err)
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{RequestID: reqID, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, callResponse{RequestID: reqID, Function: fn, Result: result})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
