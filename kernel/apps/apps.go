// Package apps holds the set of statically linked user programs available
// to the exec syscall. There is no filesystem in this kernel, so every
// runnable program is embedded into the kernel binary at compile time and
// looked up by name.
package apps

import (
	"embed"
	"strings"
)

//go:embed bin
var binFS embed.FS

type app struct {
	name string
	data []byte
}

var registeredApps []app

func init() {
	entries, err := binFS.ReadDir("bin")
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".elf") {
			continue
		}

		data, err := binFS.ReadFile("bin/" + entry.Name())
		if err != nil {
			continue
		}

		registeredApps = append(registeredApps, app{
			name: strings.TrimSuffix(entry.Name(), ".elf"),
			data: data,
		})
	}
}

// GetAppDataByName returns the embedded ELF64 image registered under name,
// or false if no such application exists. Lookup is a linear scan; the
// table is small and built once at init time.
func GetAppDataByName(name string) ([]byte, bool) {
	for _, a := range registeredApps {
		if a.name == name {
			return a.data, true
		}
	}
	return nil, false
}
