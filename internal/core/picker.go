package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// PickerVessel is one tube to pull within a picker row, with its source
// coordinates and, once assigned, its robot target coordinates.
type PickerVessel struct {
	SourceVessel   string   `json:"source_vessel"`
	SourcePosition Position `json:"source_position"`
	TargetVessel   string   `json:"target_vessel,omitempty"`
	TargetPosition Position `json:"target_position,omitempty"`
}

// PickerDataRow aggregates the vessels to pull from one physical container.
// Rows keep the insertion order of first-seen containers so repeated
// generations from the same batch membership produce the same worksheet
// layout.
type PickerDataRow struct {
	SourceVessel        string         `json:"source_vessel"`
	RackScannable       bool           `json:"rack_scannable"`
	StorageLocationPath string         `json:"storage_location_path"`
	TotalVesselCount    int            `json:"total_vessel_count"`
	Vessels             []PickerVessel `json:"vessels"`
}

// scannableRackPrefix gates the picker's rack scanner: only Matrix-family
// racks fit the scanner bed, even among machine-scannable rack types.
const scannableRackPrefix = "Matrix"

func rackScannable(rackType RackType) bool {
	return rackType.Scannable() && strings.HasPrefix(string(rackType), scannableRackPrefix)
}

// BuildPickList resolves each starting vessel of a batch to its physical
// container and groups the vessels by container, one row per container.
// Unresolvable vessels are collected into the ValidationError; resolvable
// ones still produce rows.
func BuildPickList(view TransactionView, batch VesselBatch) ([]PickerDataRow, *ValidationError) {
	verr := &ValidationError{}
	var rows []PickerDataRow
	rowIndex := make(map[string]int)

	for _, label := range batch.StartingVesselLabels {
		vessel, ok := view.FindLabVessel(label)
		if !ok {
			verr.Add("%s: unknown barcode", label)
			continue
		}
		resolved, err := ResolvePhysicalContainer(view, vessel)
		if err != nil {
			verr.Add("%s: %v", label, err)
			continue
		}

		var path string
		switch {
		case resolved.InStorage():
			path = LocationTrail(view, resolved.Location.ID)
		case resolved.Location != nil:
			// The location's latest relevant event was a check-out; the
			// container left storage but its last known home is still useful
			// on the worksheet.
			path = "Checked out of " + LocationTrail(view, resolved.Location.ID)
		default:
			if e, formation, ok := lastCheckOut(view, vessel); ok {
				resolved.Container = checkOutContainer(view, e, vessel, formation)
				resolved.Formation = &formation
				if e.StorageLocationID != nil {
					path = "Checked out of " + LocationTrail(view, *e.StorageLocationID)
				}
			} else {
				verr.Add("%s: not in storage", label)
				continue
			}
		}

		container := resolved.Container
		idx, ok := rowIndex[container.Label]
		if !ok {
			row := PickerDataRow{
				SourceVessel:        container.Label,
				RackScannable:       container.ContainerType == ContainerRackOfTubes && rackScannable(container.RackType),
				StorageLocationPath: path,
				TotalVesselCount:    totalVesselCount(view, resolved),
			}
			rows = append(rows, row)
			idx = len(rows) - 1
			rowIndex[container.Label] = idx
		}

		var position Position
		if resolved.Formation != nil {
			position, _ = resolved.Formation.PositionOf(vessel.Label)
		}
		rows[idx].Vessels = append(rows[idx].Vessels, PickerVessel{
			SourceVessel:   vessel.Label,
			SourcePosition: position,
		})
	}

	if !verr.HasProblems() {
		return rows, nil
	}
	return rows, verr
}

// totalVesselCount counts every tube of the resolved formation still stored
// at the container's exact location, not just the tubes requested for this
// batch, so the worksheet shows partial picks against a fuller rack.
func totalVesselCount(view TransactionView, resolved ResolvedContainer) int {
	if resolved.Formation == nil || resolved.Location == nil {
		return 1
	}
	count := 0
	for _, tube := range resolved.Formation.Layout {
		tv, ok := view.FindLabVessel(tube)
		if !ok || tv.StorageLocationID == nil {
			continue
		}
		if *tv.StorageLocationID == resolved.Location.ID {
			count++
		}
	}
	return count
}

// lastCheckOut finds the latest check-out event whose formation contains the
// vessel, for rows describing containers no longer in storage.
func lastCheckOut(view TransactionView, vessel LabVessel) (LabEvent, TubeFormation, bool) {
	for _, e := range sortedEventsDesc(view) {
		if e.EventType != EventStorageCheckOut {
			continue
		}
		formation, ok := eventFormation(view, e)
		if !ok {
			continue
		}
		if formation.ContainsTube(vessel.Label) || e.AncillaryVesselLabel == vessel.Label {
			return e, formation, true
		}
	}
	return LabEvent{}, TubeFormation{}, false
}

func checkOutContainer(view TransactionView, e LabEvent, vessel LabVessel, formation TubeFormation) LabVessel {
	if e.AncillaryVesselLabel == "" || e.AncillaryVesselLabel == vessel.Label {
		return vessel
	}
	if rack, ok := view.FindLabVessel(e.AncillaryVesselLabel); ok {
		return rack
	}
	return LabVessel{Label: e.AncillaryVesselLabel, ContainerType: ContainerRackOfTubes, RackType: formation.RackType}
}

// ExportTransferFile renders picker rows as the robot transfer file: one
// comma-separated record per tube (source container, source position, source
// tube, target container, target position), CRLF line endings, no header.
// Export is fail-closed: any vessel without an assigned target rejects the
// whole file with one aggregate error.
func ExportTransferFile(rows []PickerDataRow) ([]byte, error) {
	verr := &ValidationError{}
	for _, row := range rows {
		for _, v := range row.Vessels {
			if v.TargetVessel == "" || v.TargetPosition == "" {
				verr.Add("%s at %s has no target assignment", v.SourceVessel, v.SourcePosition)
			}
		}
	}
	if verr.HasProblems() {
		return nil, verr
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	for _, row := range rows {
		for _, v := range row.Vessels {
			record := []string{
				row.SourceVessel,
				string(v.SourcePosition),
				v.SourceVessel,
				v.TargetVessel,
				string(v.TargetPosition),
			}
			if err := w.Write(record); err != nil {
				return nil, fmt.Errorf("write transfer record: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush transfer file: %w", err)
	}
	return buf.Bytes(), nil
}
