package model

// All lists every table owned by the hazard store, in migration order.
func All() []any {
	return []any{
		&HazardReport{},
		&HazardResolution{},
		&ChangeNotice{},
		&KV{},
	}
}
