package config

// Presets are the hands this module was first calibrated on. Low is the
// released position of each finger.
var Presets = map[string]Hand{
	// Four X-series servos on a nanoKONTROL2. Fader 0 closes the fingers
	// together and fader 1 rotates; faders 4-7 drive one servo each.
	"model-q": {
		Profile: "xm",
		Channels: []Channel{
			{ID: 0, Name: "finger-a", Rest: 100, Low: 100, High: 1100},
			{ID: 1, Name: "finger-b", Rest: 1000, Low: 1000, High: 0},
			{ID: 2, Name: "rotation", Rest: 800, Low: 800, High: 2375},
			{ID: 3, Name: "finger-c", Rest: 550, Low: 550, High: 1600},
		},
		Bindings: []Binding{
			{Mode: "main", Control: 0, Channels: []int{0, 1, 3}},
			{Mode: "main", Control: 1, Channels: []int{2}},
			{Mode: "individual", Control: 4, Channels: []int{0}},
			{Mode: "individual", Control: 5, Channels: []int{1}},
			{Mode: "individual", Control: 6, Channels: []int{3}},
			{Mode: "individual", Control: 7, Channels: []int{2}},
		},
	},

	// XL-320 hand driven by rate control in main mode.
	"model-w": {
		Profile: "xl320",
		Channels: []Channel{
			{ID: 1, Name: "finger-1", Rest: 940, Low: 940, High: 540},
			{ID: 2, Name: "rotation", Rest: 290, Low: 290, High: 825},
			{ID: 3, Name: "finger-3", Rest: 850, Low: 850, High: 430},
			{ID: 4, Name: "finger-4", Rest: 960, Low: 960, High: 550},
		},
		Bindings: []Binding{
			{Mode: "main", Control: 2, Channels: []int{4}, Policy: "incremental"},
			{Mode: "main", Control: 3, Channels: []int{2}, Policy: "incremental"},
			{Mode: "main", Control: 4, Channels: []int{3}, Policy: "incremental"},
			{Mode: "main", Control: 5, Channels: []int{1}, Policy: "incremental"},
			{Mode: "individual", Control: 2, Channels: []int{4}},
			{Mode: "individual", Control: 3, Channels: []int{2}},
			{Mode: "individual", Control: 4, Channels: []int{3}},
			{Mode: "individual", Control: 5, Channels: []int{1}},
		},
	},

	// Two-fingers-by-two-joints XL-320 hand used for trajectory replay.
	"2v2": {
		Profile: "xl320",
		Channels: []Channel{
			{ID: 0, Name: "joint-1", Rest: 210, Low: 412, High: 37},
			{ID: 1, Name: "joint-2", Rest: 570, Low: 932, High: 247},
			{ID: 2, Name: "joint-3", Rest: 830, Low: 619, High: 1023},
			{ID: 3, Name: "joint-4", Rest: 300, Low: 0, High: 657},
		},
	},
}
