package validation

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"sieve/internal/archive"
	"sieve/internal/config"
	"sieve/internal/extract"
	"sieve/internal/fileutil"
	"sieve/internal/logging"
	"sieve/internal/manifest"
	"sieve/internal/services"
	"sieve/internal/stage"
)

const stageName = "validator"

// Options configures member naming conventions and the digest algorithm.
type Options struct {
	Algorithm        manifest.Algorithm
	ManifestSuffixes []string
	BulkSuffixes     []string
	RequiredSuffixes []string
	PublishSuffixes  []string
}

// OptionsFromConfig maps configuration onto validator options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	algo, err := manifest.ParseAlgorithm(cfg.Manifest.Algorithm)
	if err != nil {
		return Options{}, services.Wrap(services.ErrConfiguration, stageName, "algorithm", "", err)
	}
	return Options{
		Algorithm:        algo,
		ManifestSuffixes: cfg.Manifest.Suffixes,
		BulkSuffixes:     cfg.Archive.BulkSuffixes,
		RequiredSuffixes: cfg.Archive.RequiredSuffixes,
		PublishSuffixes:  cfg.Archive.PublishSuffixes,
	}, nil
}

// Validator verifies archives against their embedded manifest.
type Validator struct {
	opts       Options
	classifier manifest.Classifier
	logger     *slog.Logger
}

// New constructs a validator.
func New(opts Options, logger *slog.Logger) *Validator {
	if opts.Algorithm == "" {
		opts.Algorithm = manifest.MD5
	}
	return &Validator{
		opts:       opts,
		classifier: manifest.NewClassifier(opts.BulkSuffixes),
		logger:     logging.NewComponentLogger(logger, stageName),
	}
}

// Classifier exposes the bulk/metadata policy.
func (v *Validator) Classifier() manifest.Classifier { return v.classifier }

// Validate verifies handle against its manifest, extracting metadata members
// into workDir. A non-nil error is returned alongside a partial Result
// whenever records were produced.
func (v *Validator) Validate(ctx context.Context, handle archive.Handle, workDir string) (Result, error) {
	logger := logging.WithContext(ctx, v.logger)
	result := Result{AssayID: handle.RunID, WorkDir: workDir}

	manifestMember, ok := v.locateManifest(handle)
	if !ok {
		return result, services.Wrap(services.ErrManifestMissing, stageName, "locate manifest",
			fmt.Sprintf("no member matches %s", strings.Join(v.opts.ManifestSuffixes, ", ")), nil)
	}
	result.ManifestMember = manifestMember.Name

	ext := extract.New(workDir, v.opts.Algorithm, logger)
	files, parsed, reused, err := v.metadataFiles(ctx, handle, manifestMember, ext, logger)
	if err != nil {
		return result, err
	}
	result.SweepSkipped = reused
	result.SkippedLines = len(parsed.Skipped)
	if reused {
		logger.Info("metadata already extracted; archive sweep skipped",
			logging.String(logging.FieldEventType, "metadata_reused"),
			logging.Int("files", len(files)),
		)
	}
	if parsed.Len() == 0 {
		return result, services.Wrap(services.ErrNoManifestEntries, stageName, "parse manifest", manifestMember.Name, nil)
	}

	bulkIndex := make(map[string]int)
	var bulkMissing []string
	for _, entry := range parsed.Entries {
		category := v.classifier.Classify(entry.Name)
		record := Record{Member: entry.Name, Category: category, Expected: entry.Digest}
		if category == manifest.Bulk {
			member, present := handle.Lookup(entry.Name)
			if present {
				bulkIndex[member.Name] = len(result.Records)
				record.Bytes = member.Size
				result.BulkMembers = append(result.BulkMembers, member.Name)
			} else {
				record.Outcome = Missing
				bulkMissing = append(bulkMissing, entry.Name)
			}
			result.Records = append(result.Records, record)
			continue
		}
		record = v.verifyMetadata(record, files, ext, logger)
		result.Records = append(result.Records, record)
	}
	relative := handle.Relative(manifestMember.Name)
	if normalized, err := ext.Normalize(files[relative]); err == nil {
		files[relative] = normalized
	} else {
		logger.Warn("manifest normalization failed", logging.Error(err))
	}
	result.Files = collectFiles(files)

	result.MissingRequired = append(v.missingRequired(handle.RunID, manifestMember.Name, result.Records, files), bulkMissing...)
	if len(result.MissingRequired) > 0 {
		for i := range result.Records {
			if result.Records[i].Category == manifest.Bulk && result.Records[i].Outcome == "" {
				result.Records[i].Outcome = Skipped
			}
		}
		v.logRecords(logger, result.Records)
		return result, services.WithMembers(
			services.Wrap(services.ErrRequiredFileMissing, stageName, "required files",
				fmt.Sprintf("%d missing", len(result.MissingRequired)), nil),
			result.MissingRequired...,
		)
	}

	if len(bulkIndex) > 0 {
		if err := v.streamBulk(ctx, handle, bulkIndex, result.Records, logger); err != nil {
			v.logRecords(logger, result.Records)
			return result, err
		}
	}
	v.logRecords(logger, result.Records)

	if failed := result.FailedMembers(); len(failed) > 0 {
		return result, services.WithMembers(
			services.Wrap(services.ErrChecksumMismatch, stageName, "verify digests",
				fmt.Sprintf("%d of %d entries failed", len(failed), len(result.Records)), nil),
			failed...,
		)
	}
	return result, nil
}

func (v *Validator) locateManifest(handle archive.Handle) (archive.Member, bool) {
	for _, member := range handle.Members {
		if v.classifier.Classify(member.Name) == manifest.Bulk {
			continue
		}
		if manifest.IsManifestName(member.Name, v.opts.ManifestSuffixes) {
			return member, true
		}
	}
	return archive.Member{}, false
}

// metadataFiles returns the extracted metadata files keyed by depth-relative
// member name along with the parsed manifest.
func (v *Validator) metadataFiles(ctx context.Context, handle archive.Handle, manifestMember archive.Member, ext *extract.Extractor, logger *slog.Logger) (map[string]extract.File, manifest.Manifest, bool, error) {
	needed := make(map[string]struct{})
	for _, member := range handle.Members {
		if v.classifier.Classify(member.Name) == manifest.Metadata {
			needed[member.Name] = struct{}{}
		}
	}
	if collisions := baseCollisions(needed); len(collisions) > 0 {
		return nil, manifest.Manifest{}, false, services.WithMembers(
			services.Wrap(services.ErrUnreadableArchive, stageName, "metadata sweep",
				"metadata members share a base name in the work directory", nil),
			collisions...,
		)
	}

	identity, identityErr := archiveIdentity(handle)
	if identityErr == nil {
		if files, parsed, ok := v.reuse(handle, manifestMember, ext, identity); ok {
			return files, parsed, true, nil
		}
	} else {
		logger.Warn("archive identity unavailable; metadata will be re-extracted", logging.Error(identityErr))
	}
	if err := clearStamp(ext.Dir()); err != nil {
		return nil, manifest.Manifest{}, false, services.Wrap(services.ErrTransient, stageName, "clear sweep stamp", ext.Dir(), err)
	}

	files := make(map[string]extract.File, len(needed))
	err := archive.Walk(ctx, handle.Path, func(member archive.Member, body io.Reader) error {
		if _, ok := needed[member.Name]; !ok {
			return nil
		}
		file, err := ext.Materialize(handle.Relative(member.Name), body)
		if err != nil {
			if errors.Is(err, services.ErrUnreadableArchive) || ctx.Err() != nil {
				return err
			}
			return services.Wrap(services.ErrTransient, stageName, "materialize", member.Name, err)
		}
		files[file.Member] = file
		delete(needed, member.Name)
		if len(needed) == 0 {
			return archive.ErrStopWalk
		}
		return nil
	}, archive.WalkOptions{})
	if err != nil {
		return nil, manifest.Manifest{}, false, err
	}
	if len(needed) > 0 {
		return nil, manifest.Manifest{}, false, services.WithMembers(
			services.Wrap(services.ErrUnreadableArchive, stageName, "metadata sweep", "members vanished since inspection", nil),
			slices.Sorted(maps.Keys(needed))...,
		)
	}

	relative := handle.Relative(manifestMember.Name)
	manifestFile, ok := files[relative]
	if !ok {
		return nil, manifest.Manifest{}, false, services.Wrap(services.ErrManifestMissing, stageName, "metadata sweep", manifestMember.Name, nil)
	}
	parsed, err := parseManifestFile(manifestFile.Path)
	if err != nil {
		return nil, manifest.Manifest{}, false, err
	}

	if identityErr == nil {
		digest, err := fileutil.HashFile(manifestFile.Path)
		if err == nil {
			identity.ManifestMember = relative
			identity.ManifestDigest = hex.EncodeToString(digest[:])
			err = writeStamp(ext.Dir(), identity)
		}
		if err != nil {
			logger.Warn("sweep stamp not written; next run re-extracts metadata", logging.Error(err))
		}
	}
	return files, parsed, false, nil
}

// reuse implements hash-then-skip. The sweep is skipped only when the work
// dir's stamp names this exact archive and manifest, and every metadata entry
// on disk still matches its expected digest.
func (v *Validator) reuse(handle archive.Handle, manifestMember archive.Member, ext *extract.Extractor, current sweepStamp) (map[string]extract.File, manifest.Manifest, bool) {
	stamp, ok := readStamp(ext.Dir())
	relative := handle.Relative(manifestMember.Name)
	if !ok || stamp.ManifestMember != relative {
		return nil, manifest.Manifest{}, false
	}
	current.ManifestMember = stamp.ManifestMember
	current.ManifestDigest = stamp.ManifestDigest
	if stamp != current {
		return nil, manifest.Manifest{}, false
	}

	manifestPath, err := ext.PathFor(manifestMember.Name)
	if err != nil {
		return nil, manifest.Manifest{}, false
	}
	onDisk, err := fileutil.HashFile(manifestPath)
	if err != nil || hex.EncodeToString(onDisk[:]) != stamp.ManifestDigest {
		return nil, manifest.Manifest{}, false
	}
	parsed, err := parseManifestFile(manifestPath)
	if err != nil || parsed.Len() == 0 {
		return nil, manifest.Manifest{}, false
	}
	_, metadataEntries := v.classifier.Split(parsed.Entries)
	reused, ok := ext.Reuse(metadataEntries)
	if !ok {
		return nil, manifest.Manifest{}, false
	}
	digests, size, err := ext.Digest(manifestPath)
	if err != nil {
		return nil, manifest.Manifest{}, false
	}
	files := make(map[string]extract.File, len(reused)+1)
	for _, file := range reused {
		files[file.Member] = file
	}
	files[relative] = extract.File{
		Member:    relative,
		Name:      filepath.Base(manifestPath),
		Path:      manifestPath,
		Size:      size,
		Digests:   digests,
		Unchanged: true,
	}
	return files, parsed, true
}

// baseCollisions lists metadata members that flatten onto the same work-dir
// name as another member.
func baseCollisions(members map[string]struct{}) []string {
	byBase := make(map[string][]string, len(members))
	for name := range members {
		base := path.Base(name)
		byBase[base] = append(byBase[base], name)
	}
	var collisions []string
	for _, names := range byBase {
		if len(names) > 1 {
			collisions = append(collisions, names...)
		}
	}
	slices.Sort(collisions)
	return collisions
}

func (v *Validator) verifyMetadata(record Record, files map[string]extract.File, ext *extract.Extractor, logger *slog.Logger) Record {
	file, ok := files[record.Member]
	if !ok {
		file, ok = findByBase(files, record.Member)
	}
	if !ok {
		record.Outcome = Missing
		return record
	}
	record.File = file.Member
	record.Bytes = file.Size
	record.Reused = file.Unchanged
	computed, match := file.Digests.Match(v.opts.Algorithm, record.Expected)
	record.Computed = computed
	if !match {
		record.Outcome = Failed
		return record
	}
	record.Outcome = Passed
	normalized, err := ext.Normalize(file)
	if err != nil {
		logger.Warn("metadata normalization failed",
			logging.String(logging.FieldMember, record.Member),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on the staging directory"),
		)
		return record
	}
	files[file.Member] = normalized
	return record
}

// missingRequired lists required names with no manifest-backed source. A
// file only counts when a manifest entry was checked against it; a failed
// digest is reported by the digest check rather than here.
func (v *Validator) missingRequired(assay, manifestMember string, records []Record, files map[string]extract.File) []string {
	present := map[string]bool{strings.TrimPrefix(path.Base(manifestMember), "."): true}
	for _, record := range records {
		if record.File == "" {
			continue
		}
		if file, ok := files[record.File]; ok {
			present[file.PublishedName()] = true
		}
	}

	var missing []string
	for _, suffix := range v.opts.RequiredSuffixes {
		if name := assay + suffix; !present[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// verifiedFiles is the set of work-dir members backing a passed metadata record.
func verifiedFiles(records []Record) map[string]bool {
	verified := make(map[string]bool, len(records))
	for _, record := range records {
		if record.Category == manifest.Metadata && record.Outcome == Passed && record.File != "" {
			verified[record.File] = true
		}
	}
	return verified
}

func (v *Validator) streamBulk(ctx context.Context, handle archive.Handle, pending map[string]int, records []Record, logger *slog.Logger) error {
	sampler := logging.NewProgressSampler(10)
	buf := make([]byte, 1<<20)
	progress := func(member string, consumed, total int64) {
		if total <= 0 {
			return
		}
		percent := float64(consumed) / float64(total) * 100
		if !sampler.ShouldLog(percent, member) {
			return
		}
		logger.Info("bulk stream progress",
			logging.String(logging.FieldEventType, "bulk_progress"),
			logging.String(logging.FieldMember, member),
			logging.String("read", humanize.Bytes(uint64(consumed))),
			logging.String("total", humanize.Bytes(uint64(total))),
			logging.Int("percent", int(percent)),
		)
		stage.ReportProgress(ctx, "Validating", fmt.Sprintf("Streaming %s", path.Base(member)), percent)
	}

	err := archive.Walk(ctx, handle.Path, func(member archive.Member, body io.Reader) error {
		idx, ok := pending[member.Name]
		if !ok {
			return nil
		}
		record := &records[idx]
		hasher, err := v.opts.Algorithm.HasherFor(record.Expected)
		if err != nil {
			record.Outcome = Failed
		} else {
			computed, n, err := manifest.Sum(hasher, body, buf)
			if err != nil {
				return err
			}
			record.Computed = computed
			record.Bytes = n
			record.Outcome = Failed
			if manifest.DigestsEqual(computed, record.Expected) {
				record.Outcome = Passed
			}
		}
		delete(pending, member.Name)
		if len(pending) == 0 {
			return archive.ErrStopWalk
		}
		return nil
	}, archive.WalkOptions{Progress: progress})
	if err != nil {
		return err
	}
	for _, idx := range pending {
		records[idx].Outcome = Missing
	}
	return nil
}

func (v *Validator) logRecords(logger *slog.Logger, records []Record) {
	for _, record := range records {
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "record"),
			logging.String(logging.FieldMember, record.Member),
			logging.String("category", record.Category.String()),
			logging.String("outcome", string(record.Outcome)),
			logging.String("expected", record.Expected),
		}
		if record.Computed != "" {
			attrs = append(attrs, logging.String("computed", record.Computed))
		}
		if record.Reused {
			attrs = append(attrs, logging.Bool("reused", true))
		}
		switch record.Outcome {
		case Passed:
			logger.Info("manifest entry verified", logging.Args(attrs...)...)
		case Skipped:
			logger.Info("manifest entry skipped", logging.Args(attrs...)...)
		default:
			logger.Warn("manifest entry not verified", logging.Args(attrs...)...)
		}
	}
}

// Publish copies the verified metadata files selected by the publish
// suffixes, plus the manifest, into dest. Extracted members the manifest
// does not list are never published.
func (v *Validator) Publish(result Result, dest string) ([]string, error) {
	ext := extract.New(result.WorkDir, v.opts.Algorithm, v.logger)
	manifestBase := path.Base(result.ManifestMember)
	verified := verifiedFiles(result.Records)
	var selected []extract.File
	for _, file := range result.Files {
		isManifest := file.Name == manifestBase
		if !isManifest && !(verified[file.Member] && matchesSuffix(file.PublishedName(), v.opts.PublishSuffixes)) {
			continue
		}
		if file.Hidden() && file.Normalized == "" {
			continue
		}
		selected = append(selected, file)
	}
	published, err := ext.Publish(selected, dest)
	if err != nil {
		return published, services.Wrap(services.ErrTransient, stageName, "publish", dest, err)
	}
	return published, nil
}

func parseManifestFile(path string) (manifest.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return manifest.Manifest{}, services.Wrap(services.ErrManifestMissing, stageName, "open manifest", path, err)
	}
	defer f.Close()
	parsed, err := manifest.Parse(f)
	if err != nil {
		return manifest.Manifest{}, services.Wrap(services.ErrUnreadableArchive, stageName, "parse manifest", path, err)
	}
	return parsed, nil
}

func findByBase(files map[string]extract.File, member string) (extract.File, bool) {
	base := path.Base(member)
	for _, file := range files {
		if file.Name == base {
			return file, true
		}
	}
	return extract.File{}, false
}

func collectFiles(files map[string]extract.File) []extract.File {
	out := make([]extract.File, 0, len(files))
	for _, name := range slices.Sorted(maps.Keys(files)) {
		out = append(out, files[name])
	}
	return out
}

func matchesSuffix(name string, suffixes []string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range suffixes {
		if suffix != "" && strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}
