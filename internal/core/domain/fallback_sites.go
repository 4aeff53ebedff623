package domain

// FallbackSites returns the built-in site list used when no site source is
// reachable and nothing is cached.
func FallbackSites() []Site {
	return []Site{
		{ID: "1", Name: "IIIT Sonepat", Latitude: 28.989545, Longitude: 77.151057, RadiusMeters: 300},
		{ID: "2", Name: "Red Fort", Latitude: 28.6562, Longitude: 77.2410, RadiusMeters: 400},
		{ID: "3", Name: "Taj Mahal", Latitude: 27.1751, Longitude: 78.0421, RadiusMeters: 500},
		{ID: "4", Name: "India Gate", Latitude: 28.6129, Longitude: 77.2295, RadiusMeters: 350},
		{ID: "5", Name: "Qutub Minar", Latitude: 28.5244, Longitude: 77.1855, RadiusMeters: 350},
		{ID: "6", Name: "Konark Sun Temple", Latitude: 19.8876, Longitude: 86.0945, RadiusMeters: 450},
		{ID: "7", Name: "Gateway of India", Latitude: 18.9218, Longitude: 72.8347, RadiusMeters: 300},
		{ID: "8", Name: "Hampi", Latitude: 15.3350, Longitude: 76.4600, RadiusMeters: 800},
		{ID: "9", Name: "Golden Temple", Latitude: 31.6200, Longitude: 74.8765, RadiusMeters: 400},
		{ID: "10", Name: "Mysore Palace", Latitude: 12.3052, Longitude: 76.6552, RadiusMeters: 400},
	}
}
