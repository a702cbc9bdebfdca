// Package device supplies platform and hardware facts consumed as
// opaque annotation values on outgoing events. All fields can be
// overridden by the host before initialization.
package device

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/pulsekit/pulsekit/pkg/types"
)

// SDKVersion is reported in the sdk_version annotation.
const SDKVersion = "go 1.0.0"

// Info holds the device/platform facts attached to every event.
type Info struct {
	mu sync.RWMutex

	platform      string
	osVersion     string
	manufacturer  string
	model         string
	connection    string
	engineVersion string
	sdkWrapper    string

	startedAt time.Time
}

// New derives device info from the running platform.
func New() *Info {
	return &Info{
		platform:     runtime.GOOS,
		osVersion:    fmt.Sprintf("%s 0.0.0", runtime.GOOS),
		manufacturer: "unknown",
		model:        "unknown",
		connection:   types.ConnectionLAN,
		startedAt:    time.Now(),
	}
}

func (i *Info) Platform() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.platform
}

func (i *Info) OSVersion() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.osVersion
}

func (i *Info) Manufacturer() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.manufacturer
}

func (i *Info) Model() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.model
}

func (i *Info) ConnectionType() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.connection
}

func (i *Info) EngineVersion() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.engineVersion
}

// RelevantSDKVersion returns the wrapper SDK version when a game engine
// wrapper registered one, otherwise the native version string.
func (i *Info) RelevantSDKVersion() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.sdkWrapper != "" {
		return i.sdkWrapper
	}
	return SDKVersion
}

func (i *Info) SetPlatform(platform string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.platform = platform
}

func (i *Info) SetOSVersion(v string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.osVersion = v
}

func (i *Info) SetManufacturer(m string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.manufacturer = m
}

func (i *Info) SetModel(m string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.model = m
}

func (i *Info) SetConnectionType(c string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.connection = c
}

func (i *Info) SetEngineVersion(v string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.engineVersion = v
}

func (i *Info) SetSDKWrapperVersion(v string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sdkWrapper = v
}

// HealthAnnotations returns hardware/runtime metrics for sdk_init and
// health events.
func (i *Info) HealthAnnotations() types.Event {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	i.mu.RLock()
	uptime := int64(time.Since(i.startedAt).Seconds())
	i.mu.RUnlock()

	return types.Event{
		"app_memory_bytes": int64(ms.Alloc),
		"sys_memory_bytes": int64(ms.Sys),
		"num_cpu":          runtime.NumCPU(),
		"num_goroutine":    runtime.NumGoroutine(),
		"app_uptime":       uptime,
		"pid":              os.Getpid(),
	}
}
