package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vmledger/pkg/bus"
)

const (
	syncStartedSubject  = "vmledger.sync.started"
	syncFinishedSubject = "vmledger.sync.finished"
	changesSubject      = "vmledger.changes.detected"
)

const defaultWorkers = 8

// Coordinator drives sync runs: fetch, parse, diff against the stored
// snapshot, commit, and finalize the run row. One run per (platform,
// resource) pair at a time; the database RUNNING-row check is the source of
// truth and the in-process mutex only keeps a single process from racing
// itself between check and insert.
type Coordinator struct {
	store   Storage
	fetcher Fetcher
	bus     *bus.Bus
	clock   Clock
	log     zerolog.Logger
	workers int

	mu     sync.Mutex
	active map[string]struct{}
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithClock substitutes the timestamp source.
func WithClock(c Clock) CoordinatorOption {
	return func(co *Coordinator) { co.clock = c }
}

// WithWorkers bounds per-run commit concurrency.
func WithWorkers(n int) CoordinatorOption {
	return func(co *Coordinator) {
		if n > 0 {
			co.workers = n
		}
	}
}

// WithBus attaches an event bus. Without one, runs complete silently.
func WithBus(b *bus.Bus) CoordinatorOption {
	return func(co *Coordinator) { co.bus = b }
}

// NewCoordinator wires a coordinator against storage and a fetcher.
func NewCoordinator(store Storage, fetcher Fetcher, log zerolog.Logger, opts ...CoordinatorOption) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("inventory: nil storage")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("inventory: nil fetcher")
	}
	co := &Coordinator{
		store:   store,
		fetcher: fetcher,
		clock:   SystemClock(),
		log:     log,
		workers: defaultWorkers,
		active:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(co)
	}
	return co, nil
}

func pairKey(platform Platform, resource ResourceType) string {
	return string(platform) + "/" + string(resource)
}

func (co *Coordinator) acquire(platform Platform, resource ResourceType) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	key := pairKey(platform, resource)
	if _, busy := co.active[key]; busy {
		return false
	}
	co.active[key] = struct{}{}
	return true
}

func (co *Coordinator) release(platform Platform, resource ResourceType) {
	co.mu.Lock()
	defer co.mu.Unlock()
	delete(co.active, pairKey(platform, resource))
}

// StartSync runs one sync for the pair and returns the finished run.
// Returns ErrSyncAlreadyInProgress when the pair is already being synced,
// either by this process or by a RUNNING row another instance owns.
func (co *Coordinator) StartSync(ctx context.Context, platform Platform, resource ResourceType) (SyncRun, error) {
	run, err := co.begin(ctx, platform, resource)
	if err != nil {
		return SyncRun{}, err
	}
	return co.complete(ctx, run)
}

// StartSyncAsync creates the run and returns it immediately while the fetch
// and commit phases continue in the background. The pair lock and the
// RUNNING-row check still apply synchronously, so callers get
// ErrSyncAlreadyInProgress before any work is scheduled.
func (co *Coordinator) StartSyncAsync(ctx context.Context, platform Platform, resource ResourceType) (SyncRun, error) {
	run, err := co.begin(ctx, platform, resource)
	if err != nil {
		return SyncRun{}, err
	}
	go func() {
		// Detached from the request context; the run must finalize even
		// after the caller goes away.
		if _, err := co.complete(context.Background(), run); err != nil {
			co.log.Error().Err(err).Str("run_id", run.ID.String()).Msg("background sync run")
		}
	}()
	return run, nil
}

func (co *Coordinator) begin(ctx context.Context, platform Platform, resource ResourceType) (SyncRun, error) {
	if !ValidPlatform(platform) {
		return SyncRun{}, &ValidationError{Field: "platform", Reason: fmt.Sprintf("unknown platform %q", platform)}
	}
	if !ValidResourceType(resource) {
		return SyncRun{}, &ValidationError{Field: "resource_type", Reason: fmt.Sprintf("unknown resource type %q", resource)}
	}
	if _, ok := infraKeys[platform][resource]; !ok {
		return SyncRun{}, &ValidationError{Field: "resource_type",
			Reason: fmt.Sprintf("platform %s does not provide %s", platform, resource)}
	}

	if !co.acquire(platform, resource) {
		return SyncRun{}, ErrSyncAlreadyInProgress
	}

	run, err := co.store.CreateRun(ctx, platform, resource, co.clock.Now())
	if err != nil {
		co.release(platform, resource)
		return SyncRun{}, err
	}
	return run, nil
}

// complete owns the pair lock taken by begin and releases it when done.
func (co *Coordinator) complete(ctx context.Context, run SyncRun) (SyncRun, error) {
	defer co.release(run.Platform, run.ResourceType)

	log := co.log.With().
		Str("run_id", run.ID.String()).
		Str("platform", string(run.Platform)).
		Str("resource", string(run.ResourceType)).
		Logger()
	log.Info().Msg("sync run started")
	co.publish(ctx, syncStartedSubject, runEvent{
		RunID:        run.ID,
		Platform:     run.Platform,
		ResourceType: run.ResourceType,
		Status:       run.Status,
	})

	details, seen := co.execute(ctx, log, run)

	status := RunSuccess
	if seen == 0 && len(details.Errors) > 0 {
		status = RunFailed
	}
	if details.Error != "" {
		status = RunFailed
	}

	finished, err := co.store.FinishRun(ctx, run.ID, status, seen, details, co.clock.Now())
	if err != nil {
		log.Error().Err(err).Msg("finalize sync run")
		return SyncRun{}, err
	}

	log.Info().
		Str("status", string(finished.Status)).
		Int("objects_seen", seen).
		Int("changes_detected", details.ChangesDetected).
		Int("errors", len(details.Errors)).
		Msg("sync run finished")
	co.publish(ctx, syncFinishedSubject, runEvent{
		RunID:        finished.ID,
		Platform:     run.Platform,
		ResourceType: run.ResourceType,
		Status:       finished.Status,
		ObjectsSeen:  seen,
		Changes:      details.ChangesDetected,
	})
	return finished, nil
}

// execute performs the fetch and commit phases. It never returns an error;
// failures land in the details so the run row always gets finalized.
func (co *Coordinator) execute(ctx context.Context, log zerolog.Logger, run SyncRun) (RunDetails, int) {
	var details RunDetails

	payloads, err := co.fetcher.Fetch(ctx, run.Platform, run.ResourceType)
	if err != nil {
		log.Error().Err(err).Msg("fetch inventory")
		details.Error = err.Error()
		return details, 0
	}

	switch run.ResourceType {
	case ResourceVM, ResourceHost:
		return co.syncObjects(ctx, log, run, payloads)
	case ResourceNetwork:
		return co.syncNetworkNames(ctx, run, payloads)
	case ResourcePublicNetwork:
		return co.syncPublicNetworks(ctx, run, payloads)
	case ResourceDNS:
		return co.syncDNSRecords(ctx, run, payloads)
	}
	details.Error = fmt.Sprintf("unhandled resource type %s", run.ResourceType)
	return details, 0
}

type objectResult struct {
	committed bool
	updated   bool
	changes   []ChangeRecord
	err       error
}

// syncObjects reconciles VM or host payloads. Objects are processed by a
// bounded worker pool; each object commits independently so one bad payload
// costs only that object.
func (co *Coordinator) syncObjects(ctx context.Context, log zerolog.Logger, run SyncRun, payloads []json.RawMessage) (RunDetails, int) {
	var details RunDetails

	var nameCache *networkNameCache
	if run.Platform == PlatformVMware && run.ResourceType == ResourceVM {
		nameCache = newNetworkNameCache(co.store, run.Platform)
	}

	results := make([]objectResult, len(payloads))
	sem := make(chan struct{}, co.workers)
	var wg sync.WaitGroup
	for i, raw := range payloads {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, raw json.RawMessage) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = co.syncOneObject(ctx, run, raw, nameCache)
		}(i, raw)
	}
	wg.Wait()

	seen := 0
	for _, res := range results {
		if res.err != nil {
			details.Errors = append(details.Errors, RunError{Reason: res.err.Error()})
			continue
		}
		if !res.committed {
			continue
		}
		seen++
		if res.updated {
			details.Updated++
		}
		details.ChangesDetected += len(res.changes)
	}

	if seen > 0 {
		missing, err := co.store.MarkMissing(ctx, run.Platform, kindForResource(run.ResourceType), run.ID, co.clock.Now())
		if err != nil {
			log.Error().Err(err).Msg("flag missing objects")
			details.Errors = append(details.Errors, RunError{Reason: fmt.Sprintf("flag missing objects: %v", err)})
		} else {
			details.Missing = int(missing)
		}
	}

	if details.ChangesDetected > 0 {
		co.publish(ctx, changesSubject, changeEvent{
			RunID:        run.ID,
			Platform:     run.Platform,
			ResourceType: run.ResourceType,
			Changes:      details.ChangesDetected,
		})
	}
	return details, seen
}

func (co *Coordinator) syncOneObject(ctx context.Context, run SyncRun, raw json.RawMessage, names *networkNameCache) objectResult {
	ref, snap, err := parseObjectPayload(run.Platform, run.ResourceType, raw)
	if err != nil {
		return objectResult{err: err}
	}

	if names != nil {
		names.apply(ctx, &snap)
	}

	objectID, previous, err := co.store.LatestSnapshot(ctx, run.Platform, ref.NativeID)
	if err != nil {
		return objectResult{err: fmt.Errorf("%s: load snapshot: %w", ref.NativeID, err)}
	}

	retainKnownIPs(previous, &snap)

	now := co.clock.Now()
	var changes []ChangeRecord
	if previous != nil {
		changes = Detect(objectID, previous, &snap, run.ID, now)
	}

	if _, err := co.store.CommitSnapshot(ctx, ref, snap, changes, run.ID, now); err != nil {
		return objectResult{err: fmt.Errorf("%s: commit: %w", ref.NativeID, err)}
	}
	return objectResult{
		committed: true,
		updated:   previous != nil,
		changes:   changes,
	}
}

// syncNetworkNames ingests network id to display name mappings.
func (co *Coordinator) syncNetworkNames(ctx context.Context, run SyncRun, payloads []json.RawMessage) (RunDetails, int) {
	var details RunDetails
	seen := 0
	for _, raw := range payloads {
		var p networkMappingPayload
		if err := decodeStrict(raw, &p); err != nil {
			details.Errors = append(details.Errors, RunError{Reason: fmt.Sprintf("decode network mapping: %v", err)})
			continue
		}
		id, name := normString(p.Network), normString(p.Name)
		if id == "" || name == "" {
			details.Errors = append(details.Errors, RunError{Reason: "network mapping missing id or name"})
			continue
		}
		created, err := co.store.UpsertNetworkName(ctx, run.Platform, id, name, co.clock.Now())
		if err != nil {
			details.Errors = append(details.Errors, RunError{Reason: fmt.Sprintf("%s: upsert network: %v", id, err)})
			continue
		}
		seen++
		details.MappingsReceived++
		if created {
			details.Updated++
		}
	}
	return details, seen
}

// syncPublicNetworks attaches SNAT/DNAT mappings to known VMs by name.
func (co *Coordinator) syncPublicNetworks(ctx context.Context, run SyncRun, payloads []json.RawMessage) (RunDetails, int) {
	var details RunDetails
	seen := 0
	for _, raw := range payloads {
		var p publicNetworkPayload
		if err := decodeStrict(raw, &p); err != nil {
			details.Errors = append(details.Errors, RunError{Reason: fmt.Sprintf("decode public network: %v", err)})
			continue
		}
		details.MappingsReceived++
		name := normString(p.VMName)
		if name == "" {
			details.Errors = append(details.Errors, RunError{Reason: "public network mapping missing vm_name"})
			continue
		}
		objectID, err := co.store.FindObjectByName(ctx, KindVM, name)
		if err != nil {
			// Mappings can arrive before the VM has ever synced. Count and move on.
			continue
		}
		details.VMMatched++
		err = co.store.UpsertPublicNetwork(ctx, PublicNetworkMapping{
			ObjectID:     objectID,
			SNATIP:       normString(p.SNATIP),
			DNATIP:       normString(p.DNATIP),
			ExposedPorts: normString(p.DNATExposedPorts),
			SourceRegion: normString(p.DNATSourceRegion),
			Active:       true,
			UpdatedAt:    co.clock.Now(),
		})
		if err != nil {
			details.Errors = append(details.Errors, RunError{Reason: fmt.Sprintf("%s: upsert public network: %v", name, err)})
			continue
		}
		seen++
	}
	return details, seen
}

// syncDNSRecords attaches DNS names to VMs, falling back to hosts when the
// record targets one.
func (co *Coordinator) syncDNSRecords(ctx context.Context, run SyncRun, payloads []json.RawMessage) (RunDetails, int) {
	var details RunDetails
	seen := 0
	for _, raw := range payloads {
		var p dnsRecordPayload
		if err := decodeStrict(raw, &p); err != nil {
			details.Errors = append(details.Errors, RunError{Reason: fmt.Sprintf("decode dns record: %v", err)})
			continue
		}
		details.MappingsReceived++
		name := normString(p.Name)
		if name == "" {
			details.Errors = append(details.Errors, RunError{Reason: "dns record missing name"})
			continue
		}

		// Records marked for a host skip the VM lookup entirely.
		var objectID uuid.UUID
		err := ErrNotFound
		if normString(p.Target) != "host" {
			objectID, err = co.store.FindObjectByName(ctx, KindVM, name)
		}
		if err == nil {
			details.VMMatched++
		} else {
			objectID, err = co.store.FindObjectByName(ctx, KindHost, name)
			if err != nil {
				continue
			}
			details.HostMatched++
		}

		err = co.store.UpsertDNSRecord(ctx, DNSRecordMapping{
			ObjectID:    objectID,
			InternalDNS: normString(p.InternalDNS),
			ExternalDNS: normString(p.ExternalDNS),
			SSLEnabled:  p.SSLEnabled,
			Active:      true,
			UpdatedAt:   co.clock.Now(),
		})
		if err != nil {
			details.Errors = append(details.Errors, RunError{Reason: fmt.Sprintf("%s: upsert dns record: %v", name, err)})
			continue
		}
		seen++
	}
	return details, seen
}

func kindForResource(r ResourceType) ObjectKind {
	if r == ResourceHost {
		return KindHost
	}
	return KindVM
}

type runEvent struct {
	RunID        uuid.UUID    `json:"run_id"`
	Platform     Platform     `json:"platform"`
	ResourceType ResourceType `json:"resource_type"`
	Status       RunStatus    `json:"status"`
	ObjectsSeen  int          `json:"objects_seen,omitempty"`
	Changes      int          `json:"changes,omitempty"`
}

type changeEvent struct {
	RunID        uuid.UUID    `json:"run_id"`
	Platform     Platform     `json:"platform"`
	ResourceType ResourceType `json:"resource_type"`
	Changes      int          `json:"changes"`
}

func (co *Coordinator) publish(ctx context.Context, subject string, payload any) {
	if co.bus == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := co.bus.Publish(pubCtx, subject, payload); err != nil {
		co.log.Warn().Err(err).Str("subject", subject).Msg("publish event")
	}
}

// networkNameCache resolves vmware network ids to display names, caching per
// run so a thousand VMs on the same dvportgroup cost one query.
type networkNameCache struct {
	store    Storage
	platform Platform

	mu    sync.Mutex
	names map[string]string
}

func newNetworkNameCache(store Storage, platform Platform) *networkNameCache {
	return &networkNameCache{store: store, platform: platform, names: make(map[string]string)}
}

func (c *networkNameCache) apply(ctx context.Context, snap *FactSnapshot) {
	for i := range snap.NICs {
		nic := &snap.NICs[i]
		if nic.NetworkName == "" {
			continue
		}
		if name := c.lookup(ctx, nic.NetworkName); name != "" {
			nic.NetworkName = name
		}
	}
}

func (c *networkNameCache) lookup(ctx context.Context, networkID string) string {
	c.mu.Lock()
	if name, ok := c.names[networkID]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	name, err := c.store.NetworkName(ctx, c.platform, networkID)
	if err != nil {
		name = ""
	}

	c.mu.Lock()
	c.names[networkID] = name
	c.mu.Unlock()
	return name
}
