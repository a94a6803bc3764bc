// Package metrics holds Prometheus registration helpers.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// MustRegisterOrGet registers c with reg and returns it. If an identical
// collector is already registered, the existing one is returned instead, so
// several sessions can share a registerer. A nil reg skips registration.
func MustRegisterOrGet[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		if existing, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return existing.ExistingCollector.(T)
		}
		// Same behavior as MustRegister if the error is not for AlreadyRegistered
		panic(err)
	}
	return c
}
