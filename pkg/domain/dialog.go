package domain

// DismissalPolicy describes which gestures may dismiss an open dialog.
// It is forwarded untouched to the store on open.
type DismissalPolicy struct {
	WindowClick bool `json:"window_click" mapstructure:"window_click"`
	Escape      bool `json:"escape" mapstructure:"escape"`
	Focus       bool `json:"focus" mapstructure:"focus"`
}
