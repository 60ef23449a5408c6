package gis

// municipalities are the 78 municipios of Puerto Rico. The MIPR service
// has no listing endpoint, so the set is static.
var municipalities = []string{
	"Adjuntas", "Aguada", "Aguadilla", "Aguas Buenas", "Aibonito",
	"Añasco", "Arecibo", "Arroyo", "Barceloneta", "Barranquitas",
	"Bayamón", "Cabo Rojo", "Caguas", "Camuy", "Canóvanas", "Carolina",
	"Cataño", "Cayey", "Ceiba", "Ciales", "Cidra", "Coamo", "Comerío",
	"Corozal", "Culebra", "Dorado", "Fajardo", "Florida", "Guánica",
	"Guayama", "Guayanilla", "Guaynabo", "Gurabo", "Hatillo",
	"Hormigueros", "Humacao", "Isabela", "Jayuya", "Juana Díaz",
	"Juncos", "Lajas", "Lares", "Las Marías", "Las Piedras", "Loíza",
	"Luquillo", "Manatí", "Maricao", "Maunabo", "Mayagüez", "Moca",
	"Morovis", "Naguabo", "Naranjito", "Orocovis", "Patillas",
	"Peñuelas", "Ponce", "Quebradillas", "Rincón", "Río Grande",
	"Sabana Grande", "Salinas", "San Germán", "San Juan", "San Lorenzo",
	"San Sebastián", "Santa Isabel", "Toa Alta", "Toa Baja",
	"Trujillo Alto", "Utuado", "Vega Alta", "Vega Baja", "Vieques",
	"Villalba", "Yabucoa", "Yauco",
}

// Municipalities returns the list, already sorted.
func Municipalities() []string {
	out := make([]string, len(municipalities))
	copy(out, municipalities)
	return out
}
