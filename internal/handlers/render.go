package handlers

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"

	"github.com/Brownie44l1/tomjerry-api/internal/model"
)

const indexPage = `<!doctype html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Image Prediction</title>
  <link rel="stylesheet" href="https://stackpath.bootstrapcdn.com/bootstrap/4.5.2/css/bootstrap.min.css">
  <style>
    body { background-color: #f8f9fa; }
    .container { margin-top: 50px; max-width: 600px; }
    #previewImg { margin-top: 20px; max-width: 100%; display: none; }
  </style>
</head>
<body>
  <div class="container">
    <div class="text-center">
      <h1>4JaturatepPordee</h1>
      <h2>Tom &amp; Jerry Image Classification</h2>
    </div>
    <h3 class="text-left" style="margin-top:30px;">Upload an Image for Prediction</h3>
    <form method="POST" action="/predict" enctype="multipart/form-data">
      <div class="form-group">
        <label for="file">Choose an image file</label>
        <input type="file" class="form-control-file" name="file" id="file" required onchange="previewFile()">
      </div>
      <img id="previewImg" src="#" alt="Image Preview">
      <button type="submit" class="btn btn-primary btn-block" style="margin-top:20px;">Upload &amp; Predict</button>
    </form>
  </div>
  <script>
  function previewFile() {
    const file = document.getElementById('file').files[0];
    const preview = document.getElementById('previewImg');
    const reader = new FileReader();
    reader.onloadend = function() {
      preview.src = reader.result;
      preview.style.display = "block";
    }
    if (file) {
      reader.readAsDataURL(file);
    } else {
      preview.src = "";
      preview.style.display = "none";
    }
  }
  </script>
</body>
</html>
`

var resultTemplate = template.Must(template.New("result").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Prediction Results</title>
  <link rel="stylesheet" href="https://stackpath.bootstrapcdn.com/bootstrap/4.5.2/css/bootstrap.min.css">
  <style>
    body { background-color: #f8f9fa; }
    .container { margin-top: 50px; max-width: 600px; }
    .result-card { margin-top: 20px; }
    .img-preview { max-width: 100%; margin-top: 20px; }
  </style>
</head>
<body>
  <div class="container">
    <h1 class="text-center">Prediction Results</h1>
    <div class="text-center">
      <img src="{{.ImageURI}}" alt="Uploaded Image" class="img-preview">
    </div>
{{- range .Predictions}}
    <div class="card result-card">
      <div class="card-body">
        <h5 class="card-title">{{.Model}} Prediction</h5>
        <p class="card-text">{{.Display}}</p>
      </div>
    </div>
{{- end}}
    <div class="text-center" style="margin-top:20px;">
      <a href="/" class="btn btn-secondary">Upload Another Image</a>
    </div>
  </div>
</body>
</html>
`))

type resultPage struct {
	ImageURI    template.URL
	Predictions []model.Prediction
}

// dataURI inlines raw image bytes. mime is trusted as given.
func dataURI(mime string, data []byte) template.URL {
	return template.URL(fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)))
}

func renderResult(mime string, image []byte, predictions []model.Prediction) (string, error) {
	var buf bytes.Buffer
	page := resultPage{
		ImageURI:    dataURI(mime, image),
		Predictions: predictions,
	}
	if err := resultTemplate.Execute(&buf, page); err != nil {
		return "", fmt.Errorf("failed to render result page: %w", err)
	}
	return buf.String(), nil
}
