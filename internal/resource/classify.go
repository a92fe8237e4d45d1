package resource

import (
	"regexp"

	"github.com/google/uuid"
)

// Kind enumerates the four servable resource shapes.
type Kind int

const (
	// KindInvalid marks a target that did not match any servable shape.
	KindInvalid Kind = iota
	KindRegistries
	KindRegistry
	KindPackage
	KindArtifact
)

func (k Kind) String() string {
	switch k {
	case KindRegistries:
		return "registries"
	case KindRegistry:
		return "registry"
	case KindPackage:
		return "package"
	case KindArtifact:
		return "artifact"
	default:
		return "invalid"
	}
}

// Resource is a classified, content-addressed request target.
type Resource struct {
	Kind Kind
	UUID string
	Hash string
	// Path is the original target, echoed back for cache/logging keys.
	Path string
}

const (
	uuidPattern = `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`
	hashPattern = `[0-9a-f]{40}`
)

var (
	registriesRe = regexp.MustCompile(`^/registries$`)
	registryRe   = regexp.MustCompile(`^/registry/(` + uuidPattern + `)/(` + hashPattern + `)$`)
	packageRe    = regexp.MustCompile(`^/package/(` + uuidPattern + `)/(` + hashPattern + `)$`)
	artifactRe   = regexp.MustCompile(`^/artifact/(` + hashPattern + `)$`)
)

// Classify decides whether target names a servable resource. target must be a
// bare path: no scheme, no query string, no trailing slash (other than the
// root itself, which is never servable).
func Classify(target string) (Resource, bool) {
	if target == "" {
		return Resource{}, false
	}

	if registriesRe.MatchString(target) {
		return Resource{Kind: KindRegistries, Path: target}, true
	}

	if m := registryRe.FindStringSubmatch(target); m != nil {
		if !validUUID(m[1]) {
			return Resource{}, false
		}
		return Resource{Kind: KindRegistry, UUID: m[1], Hash: m[2], Path: target}, true
	}

	if m := packageRe.FindStringSubmatch(target); m != nil {
		if !validUUID(m[1]) {
			return Resource{}, false
		}
		return Resource{Kind: KindPackage, UUID: m[1], Hash: m[2], Path: target}, true
	}

	if m := artifactRe.FindStringSubmatch(target); m != nil {
		return Resource{Kind: KindArtifact, Hash: m[1], Path: target}, true
	}

	return Resource{}, false
}

// validUUID cross-checks the regex-matched segment against a real UUID parse,
// guarding against the regex accepting a form uuid.Parse would reject (or
// vice versa) as the two implementations drift.
func validUUID(s string) bool {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return parsed.String() == s
}
