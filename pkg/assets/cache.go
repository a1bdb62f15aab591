package assets

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png" // icons are PNG files
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Icon file names, one per gauge.
const (
	BudsLeft  = "left-bud.png"
	BudsRight = "right-bud.png"
	Headset   = "headset.png"
	Mouse     = "mouse.png"
)

// Provider supplies the raw bytes of an asset.
type Provider interface {
	ReadAsset(name string) ([]byte, error)
}

// DirProvider reads assets from a directory on disk.
type DirProvider string

func (d DirProvider) ReadAsset(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(string(d), filepath.Base(name)))
}

// FSProvider reads assets from a file system such as an embed.FS.
type FSProvider struct {
	FS fs.FS
}

func (p FSProvider) ReadAsset(name string) ([]byte, error) {
	return fs.ReadFile(p.FS, name)
}

// AssetLoadError is returned when an asset cannot be read or decoded.
type AssetLoadError struct {
	Name string
	Err  error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("failed to load asset %s: %v", e.Name, e.Err)
}

func (e *AssetLoadError) Unwrap() error {
	return e.Err
}

// Cache decodes every asset at most once per process. Failures are not
// remembered, so a fixed asset is picked up by the next call.
type Cache struct {
	provider Provider
	group    singleflight.Group

	mu     *sync.RWMutex
	images map[string]image.Image
	loads  int
}

// NewCache creates a Cache reading from p.
func NewCache(p Provider) *Cache {
	return &Cache{
		provider: p,
		mu:       &sync.RWMutex{},
		images:   make(map[string]image.Image),
	}
}

// Get returns the decoded image for name. Concurrent first calls for the
// same name share a single decode.
func (c *Cache) Get(name string) (image.Image, error) {
	if img, ok := c.cached(name); ok {
		return img, nil
	}

	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		// A previous flight may have finished between the lookup above
		// and joining this one.
		if img, ok := c.cached(name); ok {
			return img, nil
		}
		img, err := c.load(name)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.images[name] = img
		c.loads++
		c.mu.Unlock()
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// Preload resolves all names, stopping at the first failure.
func (c *Cache) Preload(names ...string) error {
	for _, name := range names {
		if _, err := c.Get(name); err != nil {
			return err
		}
	}
	return nil
}

// Loads returns how many assets were decoded so far.
func (c *Cache) Loads() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loads
}

func (c *Cache) cached(name string) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.images[name]
	return img, ok
}

func (c *Cache) load(name string) (image.Image, error) {
	b, err := c.provider.ReadAsset(name)
	if err != nil {
		return nil, &AssetLoadError{Name: name, Err: err}
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, &AssetLoadError{Name: name, Err: pkgerrors.Wrap(err, "failed to decode image")}
	}

	logrus.WithFields(logrus.Fields{
		"asset":  name,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("asset loaded")

	return img, nil
}
