// Package version carries build metadata injected with -ldflags:
//
//	go build -ldflags "-X github.com/NicolasHaas/earshot/pkg/version.tag=v0.1.0
//	  -X github.com/NicolasHaas/earshot/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/earshot/pkg/version.date=2026-01-01"
package version

var (
	tag    = ""
	commit = "unknown"
	date   = "unknown"
)

// String returns the tag, else the commit, else "dev". It is also the
// service.version reported with metrics.
func String() string {
	switch {
	case tag != "":
		return tag
	case commit != "unknown":
		return commit
	default:
		return "dev"
	}
}

// Full adds commit and build date to String when they are known.
func Full() string {
	switch {
	case tag != "":
		return tag + " (" + commit + ") built " + date
	case commit != "unknown":
		return commit + " built " + date
	default:
		return "dev"
	}
}
