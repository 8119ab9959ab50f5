package middleware

import (
	"context"
	"net/http"
	"strings"
)

const (
	DeviceHeader = "X-Device-ID"
	RegionHeader = "X-Region"
)

type deviceKey struct{}

// RequireDevice rejects requests without an X-Device-ID header and stores it in context.
// When the attestation token is bound to a device, the header must name that device.
func RequireDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(DeviceHeader))
		if id == "" || len(id) > 128 {
			writeJSONError(w, http.StatusBadRequest, "missing or invalid "+DeviceHeader+" header")
			return
		}
		if a, ok := AttestationFromContext(r.Context()); ok && a.DeviceID != "" && a.DeviceID != id {
			writeJSONError(w, http.StatusForbidden, "attestation token was issued for another device")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), deviceKey{}, id)))
	})
}

// DeviceIDFromContext returns the device id stored by RequireDevice.
func DeviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceKey{}).(string)
	return id, ok
}
