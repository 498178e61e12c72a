package scanbus

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/rangescan/internal/lidar/publish"
)

// ScanToStruct encodes a scan as a Struct keyed by its JSON field names.
func ScanToStruct(scan *publish.LaserScan) (*structpb.Struct, error) {
	b, err := json.Marshal(scan)
	if err != nil {
		return nil, fmt.Errorf("encode scan: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode scan struct: %w", err)
	}
	return s, nil
}

// StructToScan decodes a Struct produced by ScanToStruct.
func StructToScan(s *structpb.Struct) (*publish.LaserScan, error) {
	b, err := protojson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("decode scan struct: %w", err)
	}
	scan := &publish.LaserScan{}
	if err := json.Unmarshal(b, scan); err != nil {
		return nil, fmt.Errorf("decode scan: %w", err)
	}
	return scan, nil
}
