package geocoder

import "github.com/freedomfinance/ticketfire/internal/models"

// capitalCoords gives fixed capital-city coordinates per country name.
// The ladder reads only the Kazakhstan entry, for Kazakhstan addresses
// with no city; the other entries are not used by Resolve.
var capitalCoords = map[string]models.Coordinates{
	"казахстан":  {Lat: 51.1694, Lon: 71.4491}, // Astana
	"kazakhstan": {Lat: 51.1694, Lon: 71.4491},
	"россия":     {Lat: 55.7558, Lon: 37.6173}, // Moscow
	"russia":     {Lat: 55.7558, Lon: 37.6173},
	"узбекистан": {Lat: 41.2995, Lon: 69.2401}, // Tashkent
	"uzbekistan": {Lat: 41.2995, Lon: 69.2401},
	"кыргызстан": {Lat: 42.8746, Lon: 74.5698}, // Bishkek
	"kyrgyzstan": {Lat: 42.8746, Lon: 74.5698},
	"таджикистан": {Lat: 38.5598, Lon: 68.7870}, // Dushanbe
	"tajikistan": {Lat: 38.5598, Lon: 68.7870},
	"беларусь":   {Lat: 53.9006, Lon: 27.5590}, // Minsk
	"belarus":    {Lat: 53.9006, Lon: 27.5590},
	"армения":    {Lat: 40.1792, Lon: 44.4991}, // Yerevan
	"armenia":    {Lat: 40.1792, Lon: 44.4991},
	"азербайджан": {Lat: 40.4093, Lon: 49.8671}, // Baku
	"azerbaijan": {Lat: 40.4093, Lon: 49.8671},
	"грузия":     {Lat: 41.7151, Lon: 44.8271}, // Tbilisi
	"georgia":    {Lat: 41.7151, Lon: 44.8271},
	"туркменистан": {Lat: 37.9601, Lon: 58.3261}, // Ashgabat
	"turkmenistan": {Lat: 37.9601, Lon: 58.3261},
	"молдова":    {Lat: 47.0105, Lon: 28.8638}, // Chisinau
	"moldova":    {Lat: 47.0105, Lon: 28.8638},
}

// cisCountries is the shuffle pool for the no-country/city-present
// search (§4.E rule 1b).
var cisCountries = []string{
	"Казахстан", "Россия", "Узбекистан", "Кыргызстан", "Таджикистан",
	"Беларусь", "Армения", "Азербайджан", "Грузия", "Туркменистан",
	"Молдова", "Украина",
}

// astanaCoords and almatyCoords are the two fixed domestic offices the
// non-Kazakhstan ladder branch (§4.E rule 2) and the total-failure
// fallback (rule 3.b) alternate between.
var astanaCoords = models.Coordinates{Lat: 51.1694, Lon: 71.4491}
var almatyCoords = models.Coordinates{Lat: 43.2220, Lon: 76.8512}

var kzNames = map[string]bool{
	"казахстан":  true,
	"kazakhstan": true,
	"кз":         true,
	"kz":         true,
}

func isKazakhstan(country string) bool {
	return kzNames[normalizeCountry(country)]
}
