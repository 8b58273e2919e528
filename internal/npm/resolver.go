package npm

import (
	"context"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pocketnode/core/internal/ports"
	"github.com/pocketnode/core/internal/registry"
	"github.com/pocketnode/core/internal/semver"
)

// maxResolveDepth protects against pathological dependency graphs.
const maxResolveDepth = 50

// packumentCacheSize bounds the per-resolve packument memo.
const packumentCacheSize = 512

// ResolvedPackage is one entry of a flattened resolution result.
type ResolvedPackage struct {
	Name         string
	Version      string
	Tarball      string
	Integrity    string
	Shasum       string
	Dependencies map[string]string
	Bin          map[string]string
}

// Resolver walks a dependency graph against the registry, flattening it to
// one version per name. The first satisfying version wins; later
// incompatible demands only produce warnings.
type Resolver struct {
	client *registry.Client
	logger ports.Logger
	cache  *lru.Cache[string, *registry.Packument]
}

// NewResolver creates a resolver backed by the given registry client.
func NewResolver(client *registry.Client, logger ports.Logger) *Resolver {
	cache, _ := lru.New[string, *registry.Packument](packumentCacheSize)
	return &Resolver{
		client: client,
		logger: logger,
		cache:  cache,
	}
}

// ResolveOptions control a Resolve call.
type ResolveOptions struct {
	// Production excludes devDependencies of the root manifest.
	Production bool
}

// Resolve resolves the full dependency tree of a manifest.
func (r *Resolver) Resolve(ctx context.Context, pkg *PackageJSON, opts ResolveOptions) (map[string]*ResolvedPackage, error) {
	// The packument memo lives for a single resolve.
	r.cache.Purge()

	out := make(map[string]*ResolvedPackage)
	resolving := make(map[string]struct{})

	deps := pkg.AllDependencies(opts.Production)
	for _, dep := range sortedKeys(deps) {
		r.resolveDep(ctx, dep, deps[dep], 0, resolving, out)
		if err := ctx.Err(); err != nil {
			return out, err
		}
	}
	return out, nil
}

// ResolvePackages resolves explicit "name" or "name@range" specs, returning
// the flattened result plus the ranges to record in the manifest.
func (r *Resolver) ResolvePackages(ctx context.Context, specs []string) (map[string]*ResolvedPackage, map[string]string, error) {
	r.cache.Purge()

	out := make(map[string]*ResolvedPackage)
	newDeps := make(map[string]string)
	resolving := make(map[string]struct{})

	for _, spec := range specs {
		name, rng := SplitSpec(spec)
		r.resolveDep(ctx, name, rng, 0, resolving, out)
		if err := ctx.Err(); err != nil {
			return out, newDeps, err
		}

		rp, ok := out[name]
		if !ok {
			continue
		}
		if rng == "" || rng == "latest" || semver.Parse(rng) != nil {
			// Bare names, the "latest" tag, and exact versions record a
			// caret range; other tags are recorded as written.
			newDeps[name] = "^" + rp.Version
		} else {
			newDeps[name] = rng
		}
	}
	return out, newDeps, nil
}

// SplitSpec splits "name@range" into its parts, handling scoped names.
func SplitSpec(spec string) (name, rng string) {
	at := strings.LastIndexByte(spec, '@')
	if at <= 0 {
		// Bare name, or a scoped name with no version part.
		return spec, ""
	}
	return spec[:at], spec[at+1:]
}

// resolveDep resolves a single name@range demand into out.
func (r *Resolver) resolveDep(ctx context.Context, name, rng string, depth int, resolving map[string]struct{}, out map[string]*ResolvedPackage) {
	if ctx.Err() != nil {
		return
	}
	if depth > maxResolveDepth {
		r.logger.Warn(ctx, "dependency graph too deep, pruning",
			ports.F("package", name), ports.F("depth", depth))
		return
	}

	key := name + "@" + rng
	if _, busy := resolving[key]; busy {
		// Cycle: this exact demand is already being resolved above us.
		return
	}
	resolving[key] = struct{}{}
	defer delete(resolving, key)

	if existing, ok := out[name]; ok {
		if !semver.Satisfies(existing.Version, rng) {
			r.logger.Warn(ctx, "version conflict, keeping first pick",
				ports.F("package", name),
				ports.F("installed", existing.Version),
				ports.F("wanted", rng))
		}
		return
	}

	pack := r.packument(ctx, name)
	if pack == nil {
		return
	}

	version := pickVersion(pack, rng)
	if version == "" {
		r.logger.Warn(ctx, "no version satisfies range",
			ports.F("package", name), ports.F("range", rng))
		return
	}

	meta := pack.Versions[version]
	out[name] = &ResolvedPackage{
		Name:         name,
		Version:      version,
		Tarball:      meta.Dist.Tarball,
		Integrity:    meta.Dist.Integrity,
		Shasum:       meta.Dist.Shasum,
		Dependencies: meta.Dependencies,
		Bin:          meta.BinMap(),
	}

	for _, dep := range sortedKeys(meta.Dependencies) {
		r.resolveDep(ctx, dep, meta.Dependencies[dep], depth+1, resolving, out)
	}
}

// pickVersion selects the version a range demands from a packument:
// dist-tags first, then an exact published version, then max-satisfying.
func pickVersion(pack *registry.Packument, rng string) string {
	rng = strings.TrimSpace(rng)

	if tagged, ok := pack.DistTags[rng]; ok {
		if _, published := pack.Versions[tagged]; published {
			return tagged
		}
	}
	if rng == "" {
		rng = "latest"
		if tagged, ok := pack.DistTags[rng]; ok {
			if _, published := pack.Versions[tagged]; published {
				return tagged
			}
		}
		rng = "*"
	}
	if _, published := pack.Versions[rng]; published && semver.Parse(rng) != nil {
		return rng
	}
	return semver.MaxSatisfying(pack.VersionKeys(), rng)
}

// packument fetches a packument through the per-resolve memo. Network
// failures warn and return nil so one broken package does not abort the
// whole resolve.
func (r *Resolver) packument(ctx context.Context, name string) *registry.Packument {
	if p, ok := r.cache.Get(name); ok {
		return p
	}

	p, err := r.client.FetchPackument(ctx, name)
	if err != nil {
		r.logger.Warn(ctx, "failed to fetch packument",
			ports.F("package", name), ports.F("error", err.Error()))
		return nil
	}

	r.cache.Add(name, p)
	return p
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
