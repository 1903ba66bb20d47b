package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline-sensing/bvd-gauge/divider"
)

type staticReader struct {
	reading divider.Reading
}

func (r staticReader) Sample() (divider.Reading, error) {
	return r.reading, nil
}

func newTestServer(t *testing.T) *Server {
	sensor, err := divider.New(
		staticReader{divider.Reading{Raw: 574, RefMillivolts: 3300, Bits: 10}},
		divider.Config{OutputOhms: 100000, FullOhms: 200000})
	require.NoError(t, err)
	require.NoError(t, sensor.Fetch())
	return NewServer(sensor, logrus.New())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestGetStatus(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/v1/status")
	assert.Equal(t, http.StatusOK, w.Code)

	var status Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, Status{Millivolts: 3698, Raw: 574, Percent: 54}, status)
}

func TestGetVoltage(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/v1/voltage")
	assert.Equal(t, http.StatusOK, w.Code)

	var mv int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mv))
	assert.Equal(t, 3698, mv)
}

func TestGetCharge(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/v1/charge")
	assert.Equal(t, http.StatusOK, w.Code)

	var percent int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &percent))
	assert.Equal(t, 54, percent)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/v1/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
