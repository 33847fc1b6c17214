/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package web

import "github.com/flosch/pongo2/v6"

var indexTpl = pongo2.Must(pongo2.FromString(indexSource))

const indexSource = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ p.Name }} Portfolio</title>
<style>{{ css|safe }}
body { margin: 0; display: flex; min-height: 100vh; font-family: system-ui, sans-serif; background: #f0f2f5; }
.ed-form { flex: 0 0 380px; padding: 24px; background: #fff; overflow-y: auto; box-shadow: 2px 0 8px rgba(0,0,0,.08); }
.ed-form label { display: block; font-size: .8rem; color: #555; margin: 12px 0 4px; }
.ed-form input, .ed-form textarea { width: 100%; box-sizing: border-box; padding: 8px; border: 1px solid #ccc; border-radius: 6px; font: inherit; }
.ed-project { border: 1px solid #e2e2e2; border-radius: 8px; padding: 12px; margin-top: 12px; }
.ed-actions { display: flex; gap: 8px; margin-top: 16px; flex-wrap: wrap; }
.ed-actions button, .ed-actions a { padding: 8px 14px; border-radius: 6px; border: 0; background: #0d1b2a; color: #fff; text-decoration: none; font: inherit; cursor: pointer; }
.ed-actions button:disabled { opacity: .4; cursor: default; }
.ed-error { color: #b00020; font-size: .85rem; min-height: 1.2em; margin-top: 8px; }
.ed-preview { flex: 1; padding: 24px; overflow: auto; }
</style>
</head>
<body>
<form class="ed-form" onsubmit="return false">
  <h2>Portfolio</h2>
  <label for="f-name">Name</label>
  <input id="f-name" data-url="/fields/name" value="{{ p.Name }}">
  <label for="f-role">Role</label>
  <input id="f-role" data-url="/fields/role" value="{{ p.Role }}">
  <label for="f-skills">Skills (comma separated)</label>
  <input id="f-skills" data-url="/fields/skills" value="{{ p.Skills.Text }}">
  <label for="f-email">Email</label>
  <input id="f-email" data-url="/fields/email" value="{{ p.Email }}">
  <label for="f-picture">Profile picture</label>
  <input id="f-picture" type="file" accept="image/*">

  <h3>Projects</h3>
  {% for pr in p.Projects %}
  <div class="ed-project" data-id="{{ pr.ID }}">
    <label>Title</label>
    <input data-url="/projects/{{ pr.ID }}/fields/title" value="{{ pr.Title }}">
    <label>Technologies</label>
    <input data-url="/projects/{{ pr.ID }}/fields/technologies" value="{{ pr.Technologies.Text }}">
    <label>Description</label>
    <textarea data-url="/projects/{{ pr.ID }}/fields/description" rows="3">{{ pr.Description }}</textarea>
    <div class="ed-actions"><button type="button" data-post="/projects/{{ pr.ID }}/delete">Remove</button></div>
  </div>
  {% endfor %}

  <div class="ed-actions">
    <button type="button" data-post="/projects">Add project</button>
    <button type="button" data-post="/undo"{% if not canUndo %} disabled{% endif %}>Undo</button>
    <button type="button" data-post="/redo"{% if not canRedo %} disabled{% endif %}>Redo</button>
    <a href="/export.pdf" download="{{ filename }}">Download PDF</a>
  </div>
  <div class="ed-error" id="error"></div>
</form>
<main class="ed-preview" id="preview" data-version="{{ version }}">{{ preview|safe }}</main>
<script>
(function () {
  var preview = document.getElementById('preview');
  var errorBox = document.getElementById('error');
  var timers = {};

  function fail(res) {
    return res.json().then(function (j) { errorBox.textContent = j.error ? j.error.message : res.statusText; });
  }
  function post(url, body) {
    errorBox.textContent = '';
    return fetch(url, { method: 'POST', body: body }).then(function (res) {
      if (!res.ok) { return fail(res).then(function () { return null; }); }
      return res.json();
    });
  }
  document.querySelectorAll('[data-url]').forEach(function (el) {
    el.addEventListener('input', function () {
      clearTimeout(timers[el.dataset.url]);
      timers[el.dataset.url] = setTimeout(function () {
        var body = new URLSearchParams();
        body.set('value', el.value);
        post(el.dataset.url, body);
      }, 150);
    });
  });
  document.querySelectorAll('[data-post]').forEach(function (el) {
    el.addEventListener('click', function () {
      post(el.dataset.post).then(function (j) { if (j) { location.reload(); } });
    });
  });
  document.getElementById('f-picture').addEventListener('change', function (ev) {
    var file = ev.target.files[0];
    if (!file) { return; }
    var body = new FormData();
    body.append('picture', file);
    post('/picture', body);
  });
  function poll() {
    fetch('/preview?after=' + preview.dataset.version).then(function (res) {
      if (res.status === 200) {
        preview.dataset.version = res.headers.get('X-Version');
        return res.text().then(function (html) { preview.innerHTML = html; });
      }
    }).catch(function () {}).then(function () { setTimeout(poll, 50); });
  }
  poll();
})();
</script>
</body>
</html>`
