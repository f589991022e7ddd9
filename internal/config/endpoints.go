package config

import (
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Categories accepted by the apply and live-makeup-page endpoint families.
var MakeupCategories = []string{
	"lipstick", "eyeshadow", "eyeliner", "foundation", "contour", "concealer", "blush",
}

// DefaultMonitoredEndpoints lists the endpoints whose calls are metered into
// the usage ledger. Calls outside this set are proxied but never recorded.
func DefaultMonitoredEndpoints() []string {
	endpoints := []string{"/api/vto/upload"}
	for _, category := range MakeupCategories {
		endpoints = append(endpoints, "/api/vto/apply_"+category)
	}
	endpoints = append(endpoints, "/api/vto/live_makeup")
	for _, category := range MakeupCategories {
		endpoints = append(endpoints, "/api/vto/live_makeup_page/"+category)
	}
	endpoints = append(endpoints,
		"/api/vto/track_color_update",
		"/api/vto/track_makeup_application",
	)
	return endpoints
}

// EndpointsHolder exposes the monitored endpoint set with hot reload from an
// optional endpoints.yml. Readers get a consistent snapshot via atomic.Value.
type EndpointsHolder struct {
	current atomic.Value // holds map[string]struct{}
}

func NewEndpointsHolder() (*EndpointsHolder, error) {
	v := viper.New()

	v.SetConfigName("endpoints")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/vto-gateway")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VTO_GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &EndpointsHolder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.store(DefaultMonitoredEndpoints())
		return holder, nil
	}

	holder.store(endpointsFromViper(v))

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := endpointsFromViper(v)
		if len(updated) == 0 {
			log.Printf("[endpoints-config] empty endpoint set ignored: %s", e.Name)
			return
		}
		holder.store(updated)
	})

	return holder, nil
}

// NewStaticEndpointsHolder builds a holder around a fixed set. Used by tests
// and by callers that manage the set themselves.
func NewStaticEndpointsHolder(endpoints []string) *EndpointsHolder {
	holder := &EndpointsHolder{}
	holder.store(endpoints)
	return holder
}

func endpointsFromViper(v *viper.Viper) []string {
	endpoints := v.GetStringSlice("monitored_endpoints")
	if len(endpoints) == 0 {
		return DefaultMonitoredEndpoints()
	}
	return endpoints
}

func (h *EndpointsHolder) store(endpoints []string) {
	set := make(map[string]struct{}, len(endpoints))
	for _, endpoint := range endpoints {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" {
			continue
		}
		set[endpoint] = struct{}{}
	}
	h.current.Store(set)
}

// Monitored reports whether endpoint calls should be recorded.
func (h *EndpointsHolder) Monitored(endpoint string) bool {
	set, _ := h.current.Load().(map[string]struct{})
	_, ok := set[endpoint]
	return ok
}

// Replace swaps the active endpoint set.
func (h *EndpointsHolder) Replace(endpoints []string) {
	h.store(endpoints)
}
