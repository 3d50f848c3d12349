package model

// DailyReport is the day summary served by the collaborator. It is shown
// and exported as-is; the engine never derives its own totals from it.
type DailyReport struct {
	Name                 string        `json:"name" yaml:"name"`
	Date                 string        `json:"date" yaml:"date"`
	VehicleLicenseNumber string        `json:"vehicle_license_number" yaml:"vehicle_license_number"`
	From                 string        `json:"from" yaml:"from"`
	To                   string        `json:"to" yaml:"to"`
	NameOfCarriers       string        `json:"name_of_carriers" yaml:"name_of_carriers"`
	MainOfficeAddress    string        `json:"main_office_address" yaml:"main_office_address"`
	HomeTerminalAddress  string        `json:"home_terminal_address" yaml:"home_terminal_address"`
	DriverName           string        `json:"driver_name" yaml:"driver_name"`
	DrivingHours         float64       `json:"driving_hours" yaml:"driving_hours"`
	OnDutyHours          float64       `json:"on_duty_hours" yaml:"on_duty_hours"`
	OffDutyHours         float64       `json:"off_duty_hours" yaml:"off_duty_hours"`
	SleeperBerthHours    float64       `json:"sleeper_berth_hours" yaml:"sleeper_berth_hours"`
	TotalMiles           float64       `json:"total_miles" yaml:"total_miles"`
	CumulativeMileage    float64       `json:"cumulative_mileage" yaml:"cumulative_mileage"`
	Trips                []TripSummary `json:"trips" yaml:"trips"`
}

// TripSummary is one trip line of a daily report.
type TripSummary struct {
	StartTime string  `json:"start_time" yaml:"start_time"`
	EndTime   string  `json:"end_time" yaml:"end_time"`
	Distance  float64 `json:"distance" yaml:"distance"`
	Duration  float64 `json:"duration" yaml:"duration"`
}
