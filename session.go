package kiroku

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashita-ai/kiroku/internal/decode"
	"github.com/ashita-ai/kiroku/internal/historic"
	"github.com/ashita-ai/kiroku/internal/metadata"
	"github.com/ashita-ai/kiroku/internal/rpc"
	"github.com/ashita-ai/kiroku/internal/runner"
	"github.com/ashita-ai/kiroku/internal/speccache"
)

// MetadataError reports runtime metadata that was fetched but could not be
// decoded or prepared. Retrying cannot fix it, so it is reported per block
// or spec change rather than failing the task.
type MetadataError struct {
	SpecVersion uint32
	Err         error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("kiroku: metadata for spec version %d: %v", e.SpecVersion, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// session is one worker's node connection plus the runtime it last used.
type session struct {
	app    *App
	client *rpc.Client

	specVersion uint32
	md          metadata.Metadata // nil until the first useSpecAt
	types       *historic.RegistrySet
	storage     *decode.StorageDecoder // built lazily
}

// initSession dials the next endpoint in rotation. It is the runner's
// InitFunc for every command.
func (a *App) initSession(ctx context.Context, worker int, urls *runner.RoundRobin[string]) (*session, error) {
	url := urls.Next()
	c, err := a.dial(ctx, url)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("kiroku: worker connected", "worker", worker, "url", url)
	return &session{app: a, client: c}, nil
}

func (a *App) dial(ctx context.Context, url string) (*rpc.Client, error) {
	return rpc.Dial(ctx, url,
		rpc.WithLimiter(a.limiter),
		rpc.WithLogger(a.logger),
		rpc.WithMaxMessageBytes(a.cfg.MaxMessageBytes),
		rpc.WithHandshakeTimeout(a.cfg.RPCTimeout),
	)
}

// dialAny connects to the first endpoint that accepts, for commands that
// need a single connection.
func (a *App) dialAny(ctx context.Context) (*session, error) {
	var errs []error
	for _, url := range a.cfg.RPCURLs {
		c, err := a.dial(ctx, url)
		if err == nil {
			return &session{app: a, client: c}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Warn("kiroku: node unavailable", "url", url, "error", err)
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("kiroku: no node reachable: %w", errors.Join(errs...))
}

// Close closes the node connection. The runner calls it when discarding a
// session.
func (s *session) Close() error { return s.client.Close() }

// redial replaces a connection the node has dropped, keeping the cached
// runtime.
func (s *session) redial(ctx context.Context) error {
	c, err := s.app.dial(ctx, s.client.URL())
	if err != nil {
		return err
	}
	_ = s.client.Close()
	s.client = c
	return nil
}

// useSpecAt makes the runtime in force at hash current, fetching and
// preparing its metadata if the spec version differs from the cached one.
func (s *session) useSpecAt(ctx context.Context, hash rpc.Bytes) error {
	rv, err := s.client.StateGetRuntimeVersion(ctx, hash)
	if err != nil {
		return fmt.Errorf("runtime version at %s: %w", hash, err)
	}
	if s.md != nil && rv.SpecVersion == s.specVersion {
		return nil
	}

	raw, err := s.app.metadataBytes(ctx, s.client, rv.SpecVersion, hash)
	if err != nil {
		return err
	}
	md, err := metadata.Decode(raw)
	if err != nil {
		return &MetadataError{SpecVersion: rv.SpecVersion, Err: err}
	}
	types := s.app.types.ForSpecVersion(rv.SpecVersion)
	builtins, err := metadata.BuiltinTypes(md)
	if err != nil {
		return &MetadataError{SpecVersion: rv.SpecVersion, Err: err}
	}
	types.Prepend(builtins)

	s.specVersion, s.md, s.types, s.storage = rv.SpecVersion, md, types, nil
	s.app.logger.Info("kiroku: runtime loaded",
		"spec_name", rv.SpecName,
		"spec_version", rv.SpecVersion,
		"metadata_version", md.Version(),
	)
	return nil
}

// storageDecoder returns the storage decoder for the current runtime.
func (s *session) storageDecoder() (*decode.StorageDecoder, error) {
	if s.storage != nil {
		return s.storage, nil
	}
	d, err := decode.NewStorageDecoder(s.md, s.types)
	if err != nil {
		return nil, &MetadataError{SpecVersion: s.specVersion, Err: err}
	}
	s.storage = d
	return d, nil
}

// metadataBytes returns the metadata for a spec version, from the cache when
// possible. Cache failures are logged and otherwise ignored.
func (a *App) metadataBytes(ctx context.Context, c *rpc.Client, specVersion uint32, hash rpc.Bytes) ([]byte, error) {
	raw, err := a.cache.Metadata(ctx, specVersion)
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, speccache.ErrNotFound) {
		a.logger.Warn("kiroku: spec cache read failed", "spec_version", specVersion, "error", err)
	}

	raw, err = c.StateGetMetadata(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("metadata at %s: %w", hash, err)
	}
	if err := a.cache.PutMetadata(ctx, specVersion, raw); err != nil {
		a.logger.Warn("kiroku: spec cache write failed", "spec_version", specVersion, "error", err)
	}
	return raw, nil
}
