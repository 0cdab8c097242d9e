package racing

// Course is one entry in the fixed course table.
type Course struct {
	Code string
	Name string
}

// DefaultCourses is the standard 20-course rotation. Tournaments that need a
// different table override it through Rules.
var DefaultCourses = []Course{
	{Code: "SSP", Name: "Sunset Speedway"},
	{Code: "CCV", Name: "Crater Cove"},
	{Code: "MMR", Name: "Marble Mine Run"},
	{Code: "PPB", Name: "Pebble Bay"},
	{Code: "TTH", Name: "Twisting Thicket"},
	{Code: "GGL", Name: "Glacier Gauntlet"},
	{Code: "DDR", Name: "Dune Drift"},
	{Code: "FFC", Name: "Foggy Falls Circuit"},
	{Code: "VVP", Name: "Volcano Pass"},
	{Code: "LLH", Name: "Lantern Harbor"},
	{Code: "RRW", Name: "Rickety Rail Works"},
	{Code: "SSK", Name: "Starlight Skyway"},
	{Code: "BBM", Name: "Bramble Marsh"},
	{Code: "CCT", Name: "Clockwork Tower"},
	{Code: "WWF", Name: "Windswept Flats"},
	{Code: "AAQ", Name: "Aqueduct Alley"},
	{Code: "NNC", Name: "Neon City Loop"},
	{Code: "OOG", Name: "Overgrown Gardens"},
	{Code: "HHJ", Name: "Hailstone Junction"},
	{Code: "ZZR", Name: "Zephyr Ridge"},
}

// CourseByCode resolves a code against a course table.
func CourseByCode(courses []Course, code string) (Course, bool) {
	for _, c := range courses {
		if c.Code == code {
			return c, true
		}
	}
	return Course{}, false
}
