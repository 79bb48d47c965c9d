package handler

import (
	"context"
	"errors"
	"fmt"

	"hotel-messaging/internal/phoneindex"
	"hotel-messaging/internal/records"
	"hotel-messaging/internal/snapshot"
)

// MergeRemoteNames adopts names from the published remote map that the
// local map does not have.
func (d *Dashboard) MergeRemoteNames(ctx context.Context) (int, error) {
	if d.blobs == nil {
		return 0, nil
	}
	remote, err := d.blobs.RemoteNameMap(ctx)
	if err != nil {
		return 0, err
	}
	return d.names.MergeRemote(ctx, remote)
}

// IngestSnapshot folds one export into the durable stores: optional
// archive upload, name map import, occurrence index rebuild and
// publication of the results.
func (d *Dashboard) IngestSnapshot(ctx context.Context, snap *snapshot.Snapshot, upload bool) error {
	if upload && d.blobs != nil && len(snap.Data) > 0 {
		if _, err := d.blobs.UploadArchive(ctx, snap.Data, d.now()); err != nil {
			d.log.Warn().Err(err).Msg("Archive upload failed")
		}
	}

	rows := records.ExtractAll(snap.Rows)
	updated, err := d.names.UpsertRecords(ctx, rows)
	if err != nil {
		return fmt.Errorf("failed to import names: %w", err)
	}
	added, err := d.RebuildIndex(ctx)
	if err != nil {
		return err
	}
	d.log.Info().
		Str("snapshot", snap.Name).
		Int("rows", len(rows)).
		Int("skipped", snap.Skipped).
		Int("namesUpdated", updated).
		Int("indexChanged", added).
		Msg("Snapshot ingested")
	d.PublishMaps(ctx)
	return nil
}

// RebuildIndex merges every remote and local archive into the
// occurrence index and returns how many phones changed.
func (d *Dashboard) RebuildIndex(ctx context.Context) (int, error) {
	var archives []phoneindex.Archive
	if d.blobs != nil {
		remote, err := d.blobs.Archives(ctx)
		if err != nil {
			d.log.Warn().Err(err).Msg("Remote archives unavailable")
		}
		archives = append(archives, remote...)
	}
	archives = append(archives, snapshot.LocalArchives(d.config.ArchiveDirs, d.log)...)

	changed, err := d.index.MergeIndex(ctx, phoneindex.BuildArchives(archives))
	if err != nil {
		return 0, fmt.Errorf("failed to update occurrence index: %w", err)
	}
	return changed, nil
}

// PublishMaps uploads the name map, occurrence index and blocklist.
func (d *Dashboard) PublishMaps(ctx context.Context) {
	d.publish(ctx, snapshot.NameMapBlob, d.names)
	d.publish(ctx, snapshot.PhoneIndexBlob, d.index)
	d.publish(ctx, snapshot.BlocklistBlob, d.blocklist.All())
}

func (d *Dashboard) publish(ctx context.Context, name string, v any) {
	if d.blobs == nil {
		return
	}
	if err := d.blobs.PublishJSON(ctx, name, v); err != nil {
		d.log.Warn().Err(err).Str("blob", name).Msg("Publish failed")
	}
}

// CheckLocalSnapshot ingests the local export if it changed since the
// last ingestion, uploading it as a new archive.
func (d *Dashboard) CheckLocalSnapshot(ctx context.Context) error {
	if d.local == nil {
		return nil
	}
	d.ingestMu.Lock()
	defer d.ingestMu.Unlock()
	version, err := d.local.Version(ctx)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}
	d.mu.Lock()
	seen := version == d.localVersion
	d.mu.Unlock()
	if seen {
		return nil
	}

	snap, err := d.local.Latest(ctx)
	if err != nil {
		return err
	}
	if err := d.IngestSnapshot(ctx, snap, true); err != nil {
		return err
	}
	d.mu.Lock()
	d.localVersion = snap.Version
	d.mu.Unlock()
	return nil
}

// CheckRemoteSnapshot downloads the remote "latest" export when it
// changed, caches it locally and ingests it without uploading it again.
func (d *Dashboard) CheckRemoteSnapshot(ctx context.Context) error {
	if d.blobs == nil {
		return nil
	}
	d.ingestMu.Lock()
	defer d.ingestMu.Unlock()
	version, err := d.blobs.PointerVersion(ctx)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}
	d.mu.Lock()
	seen := version == d.remoteVersion
	d.mu.Unlock()
	if seen {
		return nil
	}

	data, err := d.blobs.DownloadPointer(ctx)
	if err != nil {
		return err
	}
	if d.local != nil {
		if err := d.local.Replace(data); err != nil {
			d.log.Warn().Err(err).Msg("Failed to cache remote snapshot locally")
		} else if v, err := d.local.Version(ctx); err == nil {
			d.mu.Lock()
			d.localVersion = v
			d.mu.Unlock()
		}
	}
	snap, err := snapshot.Parse(snapshot.LatestBlob, version, data)
	if err != nil {
		return err
	}
	d.log.Info().Str("version", version).Msg("Remote snapshot changed")
	if err := d.IngestSnapshot(ctx, snap, false); err != nil {
		return err
	}

	d.mu.Lock()
	d.remoteVersion = version
	d.mu.Unlock()
	return nil
}
