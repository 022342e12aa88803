package executor

import (
	"runtime"

	"github.com/dts/scheduler/pkg/protocol"
	"golang.org/x/sys/unix"
)

// ResourceProbe answers how much cpu/memory is currently available for new
// task admission. The executor consults it once per attempt in the Admit
// step; it is injectable so tests can drive the Insufficient-resources path
// without depending on the host's real capacity.
type ResourceProbe interface {
	Available() protocol.Resource
}

type staticProbe struct {
	resource protocol.Resource
}

func (p staticProbe) Available() protocol.Resource { return p.resource }

// NewStaticProbe returns a probe that always reports the same fixed snapshot.
func NewStaticProbe(cpuCores float64, memMB uint64) ResourceProbe {
	return staticProbe{protocol.Resource{CPUCore: cpuCores, MemMB: memMB}}
}

// linuxProbe reads the live cpu count and total memory via golang.org/x/sys's
// Sysinfo wrapper, the same corner of the ecosystem the teacher's pack draws
// on for host-level introspection.
type linuxProbe struct{}

func (linuxProbe) Available() protocol.Resource {
	resource := protocol.Resource{CPUCore: float64(runtime.NumCPU()), MemMB: 8192}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		resource.MemMB = uint64(info.Totalram) * uint64(info.Unit) / (1024 * 1024)
	}
	return resource
}

// DefaultResourceProbe returns the live Linux probe when running on Linux,
// falling back to the original implementation's hardcoded {4 cores, 8192MB}
// snapshot everywhere else.
func DefaultResourceProbe() ResourceProbe {
	if runtime.GOOS == "linux" {
		return linuxProbe{}
	}
	return NewStaticProbe(4, 8192)
}
