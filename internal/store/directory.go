package store

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/iamNilotpal/diagon/pkg/errors"
	"github.com/iamNilotpal/diagon/pkg/filesys"
)

// WriteLockName is the exclusive lock file gating writers. Readers never
// touch it.
const WriteLockName = "write.lock"

// Directory resolves index-relative file names against a filesystem path and
// opens inputs with the configured mapping behavior.
type Directory struct {
	path        string
	chunkPower  int
	preload     bool
	useFallback bool
	log         *zap.SugaredLogger
}

// DirectoryConfig carries the parameters for opening a Directory.
type DirectoryConfig struct {
	Path        string
	ChunkPower  int
	Preload     bool
	UseFallback bool
	Logger      *zap.SugaredLogger
}

// OpenDirectory validates the path and returns a Directory handle.
func OpenDirectory(config *DirectoryConfig) (*Directory, error) {
	if config == nil || config.Path == "" || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "Directory configuration is required",
		).WithField("config").WithRule("required")
	}

	info, err := os.Stat(config.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewStoreError(err, errors.ErrorCodeFileNotFound,
				"Index directory does not exist").WithPath(config.Path)
		}
		return nil, errors.NewStoreError(err, errors.ErrorCodeIO,
			"Failed to stat index directory").WithPath(config.Path)
	}
	if !info.IsDir() {
		return nil, errors.NewStoreError(nil, errors.ErrorCodeNotRegularFile,
			"Index path is not a directory").WithPath(config.Path)
	}

	return &Directory{
		path:        config.Path,
		chunkPower:  config.ChunkPower,
		preload:     config.Preload,
		useFallback: config.UseFallback,
		log:         config.Logger,
	}, nil
}

// Path returns the directory's filesystem path.
func (d *Directory) Path() string { return d.path }

// OpenInput opens the named file for reading. Memory mapping is attempted
// first; mapping failures degrade to buffered I/O when the directory was
// configured with fallback. Missing files and non-regular files always
// surface.
func (d *Directory) OpenInput(name string, ctx IOContext) (IndexInput, error) {
	path := filepath.Join(d.path, name)

	in, err := OpenMMapInput(path, d.chunkPower, d.preload, ctx.Advice())
	if err == nil {
		return in, nil
	}

	code := errors.GetErrorCode(err)
	mappable := code == errors.ErrorCodeMappingFailed || code == errors.ErrorCodeUnsupported
	if !mappable || !d.useFallback {
		return nil, err
	}

	d.log.Infow("Memory mapping unavailable, falling back to buffered input",
		"file", name, "reason", string(code))
	return OpenBufferedInput(path)
}

// CreateOutput creates the named file for writing.
func (d *Directory) CreateOutput(name string) (*IndexOutput, error) {
	return CreateOutput(filepath.Join(d.path, name))
}

// FileExists reports whether the named regular file exists.
func (d *Directory) FileExists(name string) bool {
	ok, err := filesys.IsRegularFile(filepath.Join(d.path, name))
	return err == nil && ok
}

// FileLength returns the size of the named file.
func (d *Directory) FileLength(name string) (int64, error) {
	info, err := os.Stat(filepath.Join(d.path, name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewStoreError(err, errors.ErrorCodeFileNotFound,
				"File not found").WithFileName(name).WithPath(d.path)
		}
		return 0, errors.NewStoreError(err, errors.ErrorCodeIO,
			"Failed to stat file").WithFileName(name).WithPath(d.path)
	}
	return info.Size(), nil
}

// ListAll returns the names of every regular file in the directory.
func (d *Directory) ListAll() ([]string, error) {
	names, err := filesys.ListFiles(d.path)
	if err != nil {
		return nil, errors.NewStoreError(err, errors.ErrorCodeIO,
			"Failed to list directory").WithPath(d.path)
	}
	return names, nil
}

// Rename atomically renames src to dst within the directory. Used by writers
// to publish commit files.
func (d *Directory) Rename(src, dst string) error {
	if err := os.Rename(filepath.Join(d.path, src), filepath.Join(d.path, dst)); err != nil {
		return errors.NewStoreError(err, errors.ErrorCodeIO,
			"Rename failed").WithPath(d.path).WithDetail("src", src).WithDetail("dst", dst)
	}
	return nil
}

// Lock is the exclusive write lock held by a single writer.
type Lock struct {
	path string
}

// ObtainLock acquires the exclusive write lock, failing with
// ErrorCodeLockUnavailable when another writer holds it.
func (d *Directory) ObtainLock() (*Lock, error) {
	path := filepath.Join(d.path, WriteLockName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.NewStoreError(err, errors.ErrorCodeLockUnavailable,
				"Write lock is held by another writer").WithPath(path)
		}
		return nil, errors.NewStoreError(err, errors.ErrorCodeIO,
			"Failed to create lock file").WithPath(path)
	}
	_ = f.Close()
	return &Lock{path: path}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	return os.Remove(l.path)
}
