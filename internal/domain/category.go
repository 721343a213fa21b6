package domain

import "strings"

// CargoCategory classifies the goods carried on a trip. The code prefix
// (a01, b02, ...) drives the required vehicle category.
type CargoCategory string

const (
	CargoFreshProduce    CargoCategory = "a01_produits_frais"
	CargoFrozenProduce   CargoCategory = "a02_produits_surgeles"
	CargoDryGoods        CargoCategory = "a03_produits_secs"
	CargoLiquidBeverages CargoCategory = "a04_boissons_liquides"
	CargoBulkMaterials   CargoCategory = "b01_materiaux_vrac"
	CargoSolidMaterials  CargoCategory = "b02_materiaux_solides"
	CargoReadyMixConcrete CargoCategory = "b03_beton_pret"
	CargoFinishedGoods   CargoCategory = "i01_produits_finis"
	CargoSpareParts      CargoCategory = "i02_pieces_detachees"
	CargoLiquidChemicals CargoCategory = "c01_chimiques_liquides"
	CargoSolidChemicals  CargoCategory = "c02_chimiques_solides"
)

// VehicleCategory identifies a truck class. Categories partition the fleet;
// the optimizer never mixes trips across categories.
type VehicleCategory string

const (
	VehicleRefrigerated  VehicleCategory = "AG1" // camion frigorifique
	VehicleChilled       VehicleCategory = "AG2" // camion refrigere
	VehicleIsothermal    VehicleCategory = "AG3" // camion isotherme
	VehicleFoodTanker    VehicleCategory = "AG4" // citerne alimentaire
	VehicleDumpTruck     VehicleCategory = "BT1" // camion benne
	VehicleMixer         VehicleCategory = "BT3" // camion malaxeur
	VehicleFlatbedRails  VehicleCategory = "BT4" // plateau ridelles
	VehicleClosedVan     VehicleCategory = "IN2" // fourgon ferme
	VehicleBoxWithLift   VehicleCategory = "IN6" // fourgon hayon
	VehicleChemTanker    VehicleCategory = "CH2" // citerne chimique
	VehicleADR           VehicleCategory = "CH4" // camion ADR
)

// cargoPrefixToVehicle maps cargo code prefixes to the vehicle category
// required to carry them.
var cargoPrefixToVehicle = map[string]VehicleCategory{
	"a01": VehicleRefrigerated,
	"a02": VehicleChilled,
	"a03": VehicleIsothermal,
	"a04": VehicleFoodTanker,
	"b01": VehicleDumpTruck,
	"b02": VehicleFlatbedRails,
	"b03": VehicleMixer,
	"i01": VehicleClosedVan,
	"i02": VehicleBoxWithLift,
	"c01": VehicleChemTanker,
	"c02": VehicleADR,
}

// RequiredVehicleCategory derives the vehicle category a cargo class needs.
// Unknown cargo codes map to the refrigerated default.
func (c CargoCategory) RequiredVehicleCategory() VehicleCategory {
	code := strings.ToLower(string(c))
	if len(code) >= 3 {
		if cat, ok := cargoPrefixToVehicle[code[:3]]; ok {
			return cat
		}
	}
	return VehicleRefrigerated
}

// AllVehicleCategories lists the known vehicle categories in code order
func AllVehicleCategories() []VehicleCategory {
	return []VehicleCategory{
		VehicleRefrigerated,
		VehicleChilled,
		VehicleIsothermal,
		VehicleFoodTanker,
		VehicleDumpTruck,
		VehicleMixer,
		VehicleFlatbedRails,
		VehicleClosedVan,
		VehicleBoxWithLift,
		VehicleChemTanker,
		VehicleADR,
	}
}
