package drivers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conocermx/renec-harvester/internal/fingerprint"
	"github.com/conocermx/renec-harvester/internal/harvester"
)

const certifierListingHTML = `<html><body>
<table id="tablaCertificadores"><tbody>
<tr><td>Instituto de Capacitación Industrial S.C.</td><td>Nuevo León</td>
    <td><a href="/RENEC/controlador.do?comp=OC&amp;idCertificador=OC-042">Detalle</a></td></tr>
<tr><td>Cámara Nacional de Comercio</td><td>Jalisco</td>
    <td><a href="javascript:void(0)">Detalle</a></td></tr>
</tbody></table>
</body></html>`

func TestCertifierParseListing(t *testing.T) {
	d, err := NewCertifierDriver(testSite(), fingerprint.New(), testClock(), zap.NewNop())
	require.NoError(t, err)

	res, err := d.ParseListing(harvester.Page{
		URL:  "https://conocer.gob.mx/RENEC/controlador.do?comp=ESLORGCERT",
		Body: []byte(certifierListingHTML),
	})
	require.NoError(t, err)

	require.Len(t, res.Details, 1)
	assert.Equal(t, "OC-042", res.Details[0].Continuation["id"])
	assert.Equal(t, "Instituto de Capacitación Industrial S.C.", res.Details[0].Continuation["name"])
	assert.Equal(t, "Nuevo León", res.Details[0].Continuation["state"])

	require.Len(t, res.Records, 1)
	assert.True(t, res.Records[0].Incomplete)
	assert.Equal(t, "Cámara Nacional de Comercio", res.Records[0].NaturalKey)
}

func TestCertifierParseDetail(t *testing.T) {
	d, err := NewCertifierDriver(testSite(), fingerprint.New(), testClock(), zap.NewNop())
	require.NoError(t, err)

	page := harvester.Page{
		URL: "https://conocer.gob.mx/RENEC/controlador.do?comp=OC&idCertificador=OC-042",
		Body: []byte(`<html><body><table class="datos-certificador">
<tr><th>Nombre</th><td>Instituto de Capacitación Industrial S.C.</td></tr>
<tr><th>Teléfono</th><td>(81) 8345-6789</td></tr>
<tr><th>Correo electrónico</th><td>contacto@ici.mx</td></tr>
<tr><th>Entidad federativa</th><td>Nuevo León</td></tr>
<tr><th>Estándares acreditados</th><td>EC0217, EC0301 y EC0076</td></tr>
</table></body></html>`),
	}
	res, err := d.ParseDetail(page, harvester.Continuation{"id": "OC-042", "name": "Instituto de Capacitación Industrial S.C."})
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, "OC-042", rec.NaturalKey)
	assert.Equal(t, "+52 8183456789", rec.Fields["phone"])
	assert.Equal(t, "contacto@ici.mx", rec.Fields["email"])
	assert.Equal(t, "19", rec.Fields["state_code"])

	require.Len(t, res.Relationships, 3)
	for _, rel := range res.Relationships {
		assert.Equal(t, "accredits", rel.Predicate)
		assert.Equal(t, harvester.EntityCertifier, rel.SubjectType)
		assert.Equal(t, "OC-042", rel.SubjectID)
		assert.Equal(t, harvester.EntityStandard, rel.ObjectType)
	}
	assert.Equal(t, "EC0217", res.Relationships[0].ObjectID)
	assert.Equal(t, "EC0301", res.Relationships[1].ObjectID)
	assert.Equal(t, "EC0076", res.Relationships[2].ObjectID)
}

func TestCertifierDetailUnmappedRegionLeftBlank(t *testing.T) {
	d, err := NewCertifierDriver(testSite(), fingerprint.New(), testClock(), zap.NewNop())
	require.NoError(t, err)

	res, err := d.ParseDetail(harvester.Page{
		URL: "https://conocer.gob.mx/RENEC/controlador.do?comp=OC&idCertificador=OC-050",
		Body: []byte(`<html><body><table class="table">
<tr><th>Nombre</th><td>Colegio de Oficios del Sureste</td></tr>
<tr><th>Estado</th><td>Región Desconocida</td></tr>
</table></body></html>`),
	}, harvester.Continuation{"id": "OC-050"})
	require.NoError(t, err)
	assert.Equal(t, "", res.Record.Fields["state_code"])
	assert.Equal(t, "Región Desconocida", res.Record.Fields["state"])
}

func TestCenterParseDetail(t *testing.T) {
	d, err := NewCenterDriver(testSite(), fingerprint.New(), testClock(), zap.NewNop())
	require.NoError(t, err)

	page := harvester.Page{
		URL: "https://conocer.gob.mx/RENEC/controlador.do?comp=CE&idCentro=9137",
		Body: []byte(`<html><body><table class="datos-centro">
<tr><th>Nombre</th><td>Centro Evaluador Monterrey</td></tr>
<tr><th>Teléfono</th><td>81 2345 6789</td></tr>
<tr><th>Estándares</th><td>EC0217</td></tr>
</table></body></html>`),
	}
	res, err := d.ParseDetail(page, harvester.Continuation{"id": "9137", "state": "CDMX"})
	require.NoError(t, err)

	assert.Equal(t, "9137", res.Record.NaturalKey)
	assert.Equal(t, harvester.EntityCenter, res.Record.EntityType)
	assert.Equal(t, "09", res.Record.Fields["state_code"])
	require.Len(t, res.Relationships, 1)
	assert.Equal(t, "evaluates", res.Relationships[0].Predicate)
	assert.Equal(t, "EC0217", res.Relationships[0].ObjectID)
}

func TestCenterDetailMissingNameFails(t *testing.T) {
	d, err := NewCenterDriver(testSite(), fingerprint.New(), testClock(), zap.NewNop())
	require.NoError(t, err)

	_, err = d.ParseDetail(harvester.Page{
		URL:  "https://conocer.gob.mx/RENEC/controlador.do?comp=CE&idCentro=9138",
		Body: []byte(`<html><body><table class="table"><tr><th>Teléfono</th><td>55 1234 5678</td></tr></table></body></html>`),
	}, harvester.Continuation{"id": "9138"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)
}
