package wallet

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/tcfw/votem/pkg/cryptography"
	"gopkg.in/yaml.v3"
)

const keyTypeSecp256k1 = "secp256k1"

var (
	ErrKeyNotFound = errors.New("key not found")
)

type keyFile struct {
	Keys []keyFileEntry `yaml:"keys"`
}

type keyFileEntry struct {
	Type    string `yaml:"type"`
	Address string `yaml:"address"`
	Data    string `yaml:"data"`
}

// FileStore keeps voter signing keys in a YAML file readable only by the
// owner.
type FileStore struct {
	path string
	keys keyFile
	idx  map[string]*cryptography.Secp256k1PrivateKey

	mu sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	f := &FileStore{path: path}
	if err := f.read(); err != nil {
		return nil, err
	}

	return f, nil
}

func (fs *FileStore) read() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return errors.Wrap(err, "creating keystore dir")
	}

	f, err := os.OpenFile(fs.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return errors.Wrap(err, "opening keystore for read")
	}
	defer f.Close()

	d, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "reading keystore")
	}

	if err := yaml.Unmarshal(d, &fs.keys); err != nil {
		return errors.Wrap(err, "unmarshalling keystore")
	}

	return fs.buildIdx()
}

func (fs *FileStore) buildIdx() error {
	//assumes locked fs.mu

	fs.idx = make(map[string]*cryptography.Secp256k1PrivateKey, len(fs.keys.Keys))

	for _, e := range fs.keys.Keys {
		if e.Type != keyTypeSecp256k1 {
			return errors.Errorf("unknown key type %s", e.Type)
		}

		k, err := cryptography.Secp256k1PrivateKeyFromHex(e.Data)
		if err != nil {
			return errors.Wrapf(err, "decoding key for %s", e.Address)
		}

		if k.Address() != e.Address {
			return errors.Errorf("key does not match address %s", e.Address)
		}

		fs.idx[e.Address] = k
	}

	return nil
}

// Add stores k. Adding a key twice is a no-op.
func (fs *FileStore) Add(k *cryptography.Secp256k1PrivateKey) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	addr := k.Address()
	if _, ok := fs.idx[addr]; ok {
		return nil
	}

	fs.keys.Keys = append(fs.keys.Keys, keyFileEntry{
		Type:    keyTypeSecp256k1,
		Address: addr,
		Data:    k.Hex(),
	})
	fs.idx[addr] = k

	return fs.write()
}

func (fs *FileStore) write() error {
	d, err := yaml.Marshal(&fs.keys)
	if err != nil {
		return errors.Wrap(err, "marshalling keystore")
	}

	if err := os.WriteFile(fs.path, d, 0600); err != nil {
		return errors.Wrap(err, "writing keystore")
	}

	return nil
}

func (fs *FileStore) Find(addr string) (*cryptography.Secp256k1PrivateKey, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	k, ok := fs.idx[addr]
	if !ok {
		return nil, errors.Wrap(ErrKeyNotFound, addr)
	}

	return k, nil
}

// List returns the stored addresses in sorted order.
func (fs *FileStore) List() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	addrs := make([]string, 0, len(fs.idx))
	for a := range fs.idx {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	return addrs
}
