package core

import "storagecore/pkg/domain"

type (
	EntityType               = domain.EntityType
	LocationType             = domain.LocationType
	ContainerType            = domain.ContainerType
	RackType                 = domain.RackType
	Position                 = domain.Position
	EventType                = domain.EventType
	Severity                 = domain.Severity
	Base                     = domain.Base
	StorageLocation          = domain.StorageLocation
	LabVessel                = domain.LabVessel
	TubeFormation            = domain.TubeFormation
	LabEvent                 = domain.LabEvent
	Transfer                 = domain.Transfer
	VesselBatch              = domain.VesselBatch
	Change                   = domain.Change
	Action                   = domain.Action
	Violation                = domain.Violation
	Result                   = domain.Result
	Rule                     = domain.Rule
	RuleView                 = domain.RuleView
	RulesEngine              = domain.RulesEngine
	RuleViolationError       = domain.RuleViolationError
	ValidationError          = domain.ValidationError
	NotFoundError            = domain.NotFoundError
	InconsistentHistoryError = domain.InconsistentHistoryError
)

const (
	EntityStorageLocation = domain.EntityStorageLocation
	EntityLabVessel       = domain.EntityLabVessel
	EntityTubeFormation   = domain.EntityTubeFormation
	EntityLabEvent        = domain.EntityLabEvent
	EntityVesselBatch     = domain.EntityVesselBatch
)

const (
	LocationFreezer      = domain.LocationFreezer
	LocationRefrigerator = domain.LocationRefrigerator
	LocationShelvingUnit = domain.LocationShelvingUnit
	LocationCabinet      = domain.LocationCabinet
	LocationSection      = domain.LocationSection
	LocationShelf        = domain.LocationShelf
	LocationDrawer       = domain.LocationDrawer
	LocationRack         = domain.LocationRack
	LocationBox          = domain.LocationBox
	LocationSlot         = domain.LocationSlot
	LocationGaugeRack    = domain.LocationGaugeRack
	LocationLoose        = domain.LocationLoose
)

const (
	ContainerTube        = domain.ContainerTube
	ContainerRackOfTubes = domain.ContainerRackOfTubes
	ContainerPlate       = domain.ContainerPlate
	ContainerPlateWell   = domain.ContainerPlateWell
)

const (
	RackMatrix96        = domain.RackMatrix96
	RackMatrix48        = domain.RackMatrix48
	RackFluidX96        = domain.RackFluidX96
	RackHamiltonCarrier = domain.RackHamiltonCarrier
	RackAbgene96        = domain.RackAbgene96
	RackTypeUnspecified = domain.RackTypeUnspecified
)

const (
	EventInPlace                 = domain.EventInPlace
	EventStorageCheckIn          = domain.EventStorageCheckIn
	EventStorageCheckOut         = domain.EventStorageCheckOut
	EventSectionTransfer         = domain.EventSectionTransfer
	EventCherryPickTransfer      = domain.EventCherryPickTransfer
	EventVesselToSectionTransfer = domain.EventVesselToSectionTransfer
	EventGeneric                 = domain.EventGeneric
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }

// NewDefaultRulesEngine constructs an engine preloaded with the storage rules
// every deployment should run: slot capacity enforcement and location tree
// integrity.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewSlotCapacityRule())
	engine.Register(NewTreeIntegrityRule())
	return engine
}
