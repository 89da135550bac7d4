package dosing

// PHTag, ORPTag and ECTag are the controller_type registry keys for the
// three dosing variants spec.md §4.H names. pH's "up" direction raises
// pH via a base pump; "down" is the acid pump. EC's "up" is the nutrient
// pump; "down" is the water top-up pump (spec.md §4.H).
const (
	PHTag  = "dosing_ph"
	ORPTag = "dosing_orp"
	ECTag  = "dosing_ec"
)

func NewPH() Variant  { return Variant{Role: "ph", Up: "dose_up", Down: "dose_down"} }
func NewORP() Variant { return Variant{Role: "orp", Up: "dose_up", Down: "dose_down"} }
func NewEC() Variant  { return Variant{Role: "ec", Up: "dose_up", Down: "dose_down"} }
