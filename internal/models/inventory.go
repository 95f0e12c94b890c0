package models

type InventoryCategory string

const (
	CategoryWater   InventoryCategory = "water"
	CategoryFood    InventoryCategory = "food"
	CategoryMedical InventoryCategory = "medical"
	CategoryComms   InventoryCategory = "comms"
	CategoryTools   InventoryCategory = "tools"
)

// InventoryItem is one line of the 72h go-bag checklist.
type InventoryItem struct {
	ID       string            `json:"id"`
	Name     string            `json:"name" validate:"required,max=80"`
	Category InventoryCategory `json:"category" validate:"required,oneof=water food medical comms tools"`
	Packed   bool              `json:"packed"`
	Qty      int               `json:"qty" validate:"min=1,max=999"`
}
