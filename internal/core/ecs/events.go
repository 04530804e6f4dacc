package ecs

// OwnershipChanged is emitted by Store.SetOwner when the owner actually changes.
type OwnershipChanged struct {
	Entity EntityID
	Old    OwnerID
	New    OwnerID
}

// ControllerChanged is emitted by Store.SetController.
type ControllerChanged struct {
	Entity EntityID
	Old    OwnerID
	New    OwnerID
}

// TerrainChanged is emitted by Store.SetTerrain.
type TerrainChanged struct {
	Entity EntityID
	Old    TerrainClass
	New    TerrainClass
}
