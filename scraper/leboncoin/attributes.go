package leboncoin

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"leboncoin-scraper/models"
)

// attributeRule binds one record field to the label(s) it is published under.
// Exactly one of scalar and set is non-nil.
type attributeRule struct {
	labels []string
	scalar func(r *models.ListingRecord) **string
	set    func(r *models.ListingRecord) *[]string
}

func scalar(f func(r *models.ListingRecord) **string, labels ...string) attributeRule {
	return attributeRule{labels: labels, scalar: f}
}

func set(f func(r *models.ListingRecord) *[]string, labels ...string) attributeRule {
	return attributeRule{labels: labels, set: f}
}

var attributeRules = []attributeRule{
	scalar(func(r *models.ListingRecord) **string { return &r.PropertyType }, "Type de bien"),
	scalar(func(r *models.ListingRecord) **string { return &r.Furnished }, "Ce bien est :"),
	scalar(func(r *models.ListingRecord) **string { return &r.Surface }, "Surface habitable"),
	scalar(func(r *models.ListingRecord) **string { return &r.Rooms }, "Nombre de pièces"),
	scalar(func(r *models.ListingRecord) **string { return &r.Bedrooms }, "Nombre de chambres"),
	scalar(func(r *models.ListingRecord) **string { return &r.ShowerRooms }, "Nombre de salle d'eau"),
	scalar(func(r *models.ListingRecord) **string { return &r.Bathrooms }, "Nombre de salle de bain"),
	scalar(func(r *models.ListingRecord) **string { return &r.ParkingSpaces }, "Places de parking"),
	scalar(func(r *models.ListingRecord) **string { return &r.Levels }, "Nombre de niveaux"),
	scalar(func(r *models.ListingRecord) **string { return &r.AvailableFrom }, "Disponible à partir de"),
	scalar(func(r *models.ListingRecord) **string { return &r.ConstructionYear }, "Année de construction"),
	scalar(func(r *models.ListingRecord) **string { return &r.EnergyClass }, "Classe énergie"),
	scalar(func(r *models.ListingRecord) **string { return &r.GES }, "GES"),
	scalar(func(r *models.ListingRecord) **string { return &r.Elevator }, "Ascenseur"),
	scalar(func(r *models.ListingRecord) **string { return &r.Floor }, "Étage de votre bien"),
	scalar(func(r *models.ListingRecord) **string { return &r.BuildingFloors },
		"Nombre d’étages dans l’immeuble", "Nombre d'étages dans l'immeuble"),
	set(func(r *models.ListingRecord) *[]string { return &r.Outdoor }, "Extérieur"),
	scalar(func(r *models.ListingRecord) **string { return &r.ChargesIncluded }, "Charges incluses"),
	scalar(func(r *models.ListingRecord) **string { return &r.SecurityDeposit }, "Dépôt de garantie"),
	scalar(func(r *models.ListingRecord) **string { return &r.RentalCharges }, "Charges locatives"),
	set(func(r *models.ListingRecord) *[]string { return &r.Features }, "Caractéristiques"),
}

// normalizeLabel trims and composes a label so that byte-wise comparison
// is exact and case-sensitive.
func normalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// applyAttributes resolves every rule against the ad's attribute list. The
// first attribute with a matching label wins; unmatched fields stay nil.
func applyAttributes(r *models.ListingRecord, attrs []RawAttribute) {
	byLabel := make(map[string]*RawAttribute, len(attrs))
	for i := range attrs {
		label := normalizeLabel(attrs[i].KeyLabel)
		if _, seen := byLabel[label]; !seen {
			byLabel[label] = &attrs[i]
		}
	}

	for _, rule := range attributeRules {
		for _, label := range rule.labels {
			attr, ok := byLabel[normalizeLabel(label)]
			if !ok {
				continue
			}
			if rule.scalar != nil {
				if attr.ValueLabel != nil {
					v := string(*attr.ValueLabel)
					*rule.scalar(r) = &v
				}
			} else if attr.ValuesLabel != nil {
				*rule.set(r) = append([]string(nil), attr.ValuesLabel...)
			}
			break
		}
	}
}
