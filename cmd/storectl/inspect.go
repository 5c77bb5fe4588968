package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cuemby/warren/internal/store/keys"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect KEY-HEX",
	Short: "Decode a raw store key and print its components",
	Long: `Parses a hex-encoded key the way each family's accessor in
internal/store/keys assembled it — Archive, Property, Index, Bitmap,
Log, Blob, Quota, Counter, or Task — mirroring the inline key decoding
internal/store/task.parseTask does for its own family. Unrecognized or
malformed keys fall back to a raw hex dump.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := hex.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("storectl inspect: invalid hex: %w", err)
		}
		fmt.Println(describeKey(raw))
		return nil
	},
}

func describeKey(k []byte) string {
	if len(k) < 1 {
		return "(empty key)"
	}
	switch k[0] {
	case keys.FamilyArchive:
		if len(k) != 1+4+1+4 {
			break
		}
		account := binary.BigEndian.Uint32(k[1:5])
		collection := k[5]
		document := binary.BigEndian.Uint32(k[6:10])
		return fmt.Sprintf("Archive{account=%d collection=%d document=%d}", account, collection, document)

	case keys.FamilyProperty:
		if len(k) != 1+4+1+4+1 {
			break
		}
		account := binary.BigEndian.Uint32(k[1:5])
		collection := k[5]
		document := binary.BigEndian.Uint32(k[6:10])
		field := k[10]
		return fmt.Sprintf("Property{account=%d collection=%d document=%d field=%d}", account, collection, document, field)

	case keys.FamilyIndex:
		if len(k) < 1+4+1+1+4 {
			break
		}
		account := binary.BigEndian.Uint32(k[1:5])
		collection := k[5]
		field := k[6]
		value := k[7 : len(k)-4]
		document := binary.BigEndian.Uint32(k[len(k)-4:])
		return fmt.Sprintf("Index{account=%d collection=%d field=%d value=%x document=%d}",
			account, collection, field, value, document)

	case keys.FamilyBitmap:
		if len(k) < 1+4+1+1+4 {
			break
		}
		account := binary.BigEndian.Uint32(k[1:5])
		collection := k[5]
		field := k[6]
		tag := k[7 : len(k)-4]
		chunk := binary.BigEndian.Uint32(k[len(k)-4:])
		return fmt.Sprintf("Bitmap{account=%d collection=%d field=%d tag=%x chunk=%d}",
			account, collection, field, tag, chunk)

	case keys.FamilyLog:
		if len(k) != 1+4+1+8 {
			break
		}
		account := binary.BigEndian.Uint32(k[1:5])
		syncCollection := k[5]
		changeID := binary.BigEndian.Uint64(k[6:14])
		return fmt.Sprintf("Log{account=%d syncCollection=%d changeId=%d}", account, syncCollection, changeID)

	case keys.FamilyBlob:
		if len(k) < 1+32+1 {
			break
		}
		hash := k[1:33]
		class := keys.BlobLinkClass(k[33])
		payload := k[34:]
		return fmt.Sprintf("Blob{hash=%x class=%s payload=%s}", hash, blobClassName(class), describeBlobPayload(class, payload))

	case keys.FamilyQuota:
		if len(k) != 1+4 {
			break
		}
		account := binary.BigEndian.Uint32(k[1:5])
		return fmt.Sprintf("Quota{account=%d}", account)

	case keys.FamilyCounter:
		if len(k) < 1+4+1 {
			break
		}
		account := binary.BigEndian.Uint32(k[1:5])
		collection := k[5]
		name := string(k[6:])
		return fmt.Sprintf("Counter{account=%d collection=%d name=%q}", account, collection, name)

	case keys.FamilyTask:
		if len(k) < 1+8+1+4+4 {
			break
		}
		dueMillis := int64(binary.BigEndian.Uint64(k[1:9]))
		kind := k[9]
		account := binary.BigEndian.Uint32(k[10:14])
		document := binary.BigEndian.Uint32(k[14:18])
		tail := k[18:]
		return fmt.Sprintf("Task{dueAt=%s kind=%d account=%d document=%d tail=%x}",
			time.UnixMilli(dueMillis).UTC().Format(time.RFC3339), kind, account, document, tail)
	}
	return fmt.Sprintf("(unrecognized key, family=%d, raw=%x)", k[0], k)
}

func blobClassName(c keys.BlobLinkClass) string {
	switch c {
	case keys.BlobLinkLinked:
		return "linked"
	case keys.BlobLinkReserved:
		return "reserved"
	case keys.BlobLinkTemporary:
		return "temporary"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

func describeBlobPayload(class keys.BlobLinkClass, payload []byte) string {
	switch class {
	case keys.BlobLinkLinked:
		if len(payload) != 4+1+4 {
			break
		}
		account := binary.BigEndian.Uint32(payload[0:4])
		collection := payload[4]
		document := binary.BigEndian.Uint32(payload[5:9])
		return fmt.Sprintf("{account=%d collection=%d document=%d}", account, collection, document)
	case keys.BlobLinkReserved:
		if len(payload) != 4+8 {
			break
		}
		account := binary.BigEndian.Uint32(payload[0:4])
		until := int64(binary.BigEndian.Uint64(payload[4:12]))
		return fmt.Sprintf("{account=%d until=%s}", account, time.UnixMilli(until).UTC().Format(time.RFC3339))
	case keys.BlobLinkTemporary:
		if len(payload) != 8 {
			break
		}
		until := int64(binary.BigEndian.Uint64(payload))
		return fmt.Sprintf("{until=%s}", time.UnixMilli(until).UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("%x", payload)
}
