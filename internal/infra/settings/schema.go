package settings

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Layout: preview/{meta/version, hostContext, inputs/<tool>}.
const (
	schemaVersion = 2

	rootBucketName   = "preview"
	metaBucketName   = "meta"
	inputsBucketName = "inputs"
	versionKey       = "version"
	hostContextKey   = "hostContext"
)

func ensureSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(rootBucketName))
		if err != nil {
			return fmt.Errorf("create preview bucket: %w", err)
		}
		meta, err := root.CreateBucketIfNotExists([]byte(metaBucketName))
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		if _, err := root.CreateBucketIfNotExists([]byte(inputsBucketName)); err != nil {
			return fmt.Errorf("create inputs bucket: %w", err)
		}

		switch current := readSchemaVersion(meta); {
		case current == 0:
			return writeSchemaVersion(meta, schemaVersion)
		case current != schemaVersion:
			return fmt.Errorf("unsupported preview settings schema version %d", current)
		default:
			return nil
		}
	})
}

func readSchemaVersion(meta *bolt.Bucket) int {
	raw := meta.Get([]byte(versionKey))
	if len(raw) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(raw))
}

func writeSchemaVersion(meta *bolt.Bucket, version int) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(version))
	return meta.Put([]byte(versionKey), buf)
}
