// Package clientpatch renders the small scripts injected into rewritten
// documents for references only the browser can see: the module loader's
// base URL, dependency arrays passed to define(), and gallery images
// inserted after load.
//
// Output is deterministic for a given CDN base. Every script carries a
// data-cdn-patch marker so a document is never patched twice.
package clientpatch

import (
	"strings"
	"text/template"
)

// Kind names a patch.
type Kind string

const (
	RequireConfig  Kind = "requirejs-config"
	DefineWrapper  Kind = "define-wrapper"
	ProductGallery Kind = "product-gallery"
)

// Kinds lists every patch kind.
var Kinds = []Kind{RequireConfig, DefineWrapper, ProductGallery}

var templates = map[Kind]*template.Template{
	RequireConfig:  template.Must(template.New(string(RequireConfig)).Parse(requireConfigTmpl)),
	DefineWrapper:  template.Must(template.New(string(DefineWrapper)).Parse(defineWrapperTmpl)),
	ProductGallery: template.Must(template.New(string(ProductGallery)).Parse(productGalleryTmpl)),
}

// NormalizeBase trims trailing slashes from base and appends exactly one.
func NormalizeBase(base string) string {
	return strings.TrimRight(base, "/") + "/"
}

// Marker returns the attribute identifying a patch of kind k.
func Marker(k Kind) string {
	return `data-cdn-patch="` + string(k) + `"`
}

// Has reports whether doc already carries a patch of kind k.
func Has(doc string, k Kind) bool {
	return strings.Contains(doc, Marker(k))
}

// Script renders the patch of kind k for cdnBase. It returns "" for an
// unknown kind or an empty base.
func Script(k Kind, cdnBase string) string {
	t, ok := templates[k]
	if !ok || strings.TrimSpace(cdnBase) == "" {
		return ""
	}
	var b strings.Builder
	data := struct {
		Kind Kind
		Base string
	}{k, NormalizeBase(cdnBase)}
	if err := t.Execute(&b, data); err != nil {
		return ""
	}
	return b.String()
}

// Namespace literals inside the scripts are split ('/sta' + 'tic/') so a
// second rewrite of a patched document finds nothing to rewrite in them.

const requireConfigTmpl = `<script type="text/javascript" data-cdn-patch="{{.Kind}}">
(function () {
  if (typeof require === 'undefined' || !require.config) { return; }
  require.config({ baseUrl: '{{js .Base}}' });
})();
</script>`

const defineWrapperTmpl = `<script type="text/javascript" data-cdn-patch="{{.Kind}}">
(function () {
  var base = '{{js .Base}}';
  var original = window.define;
  if (!original) { return; }
  function mirror(dep) {
    if (typeof dep !== 'string') { return dep; }
    if (dep.indexOf('/sta' + 'tic/') === 0) { return base + dep.substring(8); }
    if (dep.indexOf('/me' + 'dia/') === 0) { return base + dep.substring(7); }
    return dep;
  }
  window.define = function (name, deps, callback) {
    if (Array.isArray(deps)) { deps = deps.map(mirror); }
    else if (Array.isArray(name)) { name = name.map(mirror); }
    return original.call(window, name, deps, callback);
  };
  for (var prop in original) {
    if (Object.prototype.hasOwnProperty.call(original, prop)) {
      window.define[prop] = original[prop];
    }
  }
})();
</script>`

const productGalleryTmpl = `<script type="text/javascript" data-cdn-patch="{{.Kind}}">
(function () {
  var base = '{{js .Base}}';
  var marker = '/me' + 'dia/';
  function mirror(url) {
    var i = url.indexOf(marker);
    if (i === -1) { return url; }
    return base + url.substring(i + marker.length).replace(/^\/+/, '');
  }
  function patchSrcset(value) {
    return value.split(',').map(function (entry) {
      var parts = entry.trim().split(/\s+/);
      if (!parts[0] || parts[0].indexOf(marker) === -1) { return entry.trim(); }
      parts[0] = mirror(parts[0]);
      return parts.join(' ');
    }).join(', ');
  }
  function patch() {
    var images = document.querySelectorAll('.product-image-photo, .fotorama__img, img[data-role=image-element]');
    Array.prototype.forEach.call(images, function (img) {
      ['src', 'data-src'].forEach(function (attr) {
        var v = img.getAttribute(attr);
        if (v && v.indexOf(marker) !== -1) { img.setAttribute(attr, mirror(v)); }
      });
      var set = img.getAttribute('srcset');
      if (set && set.indexOf(marker) !== -1) { img.setAttribute('srcset', patchSrcset(set)); }
    });
    var inits = document.querySelectorAll('script[type=text\\/x-magento-init]');
    Array.prototype.forEach.call(inits, function (script) {
      var text = script.textContent;
      if (!text || text.indexOf('img') === -1) { return; }
      try {
        var data = JSON.parse(text);
        var changed = false;
        (function walk(node) {
          if (!node || typeof node !== 'object') { return; }
          Object.keys(node).forEach(function (k) {
            var v = node[k];
            if (typeof v === 'string' && v.indexOf(marker) !== -1) { node[k] = mirror(v); changed = true; }
            else { walk(v); }
          });
        })(data);
        if (changed) { script.textContent = JSON.stringify(data); }
      } catch (e) {
        if (window.console) { console.warn('cdn gallery patch:', e); }
      }
    });
  }
  patch();
  document.addEventListener('DOMContentLoaded', patch);
  document.addEventListener('gallery:loaded', patch);
  setTimeout(patch, 1000);
  setTimeout(patch, 3000);
})();
</script>`
