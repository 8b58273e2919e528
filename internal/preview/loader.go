package preview

// loaderJS is the client-side module loader embedded in every bundle. It
// resolves registered module paths (with extension and index tries), maps
// the React module names onto the UMD globals, returns empty objects for
// CSS and unknown bare modules, caches evaluated modules, and posts
// structured errors to the parent frame.
const loaderJS = `(function () {
  var cache = {};
  var builtins = {
    'react': function () { return window.React; },
    'react-dom': function () { return window.ReactDOM; },
    'react-dom/client': function () {
      return {
        createRoot: function (el) { return window.ReactDOM.createRoot(el); },
        hydrateRoot: function (el, node) { return window.ReactDOM.hydrateRoot(el, node); }
      };
    },
    'react/jsx-runtime': function () { return __pnJsxRuntime(); },
    'react/jsx-dev-runtime': function () { return __pnJsxRuntime(); }
  };

  function __pnJsxRuntime() {
    function make(type, props) {
      props = props || {};
      var children = props.children;
      var rest = {};
      for (var k in props) { if (k !== 'children') rest[k] = props[k]; }
      if (children === undefined) return window.React.createElement(type, rest);
      if (Object.prototype.toString.call(children) === '[object Array]') {
        return window.React.createElement.apply(null, [type, rest].concat(children));
      }
      return window.React.createElement(type, rest, children);
    }
    return { Fragment: window.React.Fragment, jsx: make, jsxs: make, jsxDEV: make };
  }

  function normalize(path) {
    var parts = path.split('/');
    var out = [];
    for (var i = 0; i < parts.length; i++) {
      var p = parts[i];
      if (p === '' || p === '.') continue;
      if (p === '..') { out.pop(); continue; }
      out.push(p);
    }
    return '/' + out.join('/');
  }

  function dirOf(path) {
    var i = path.lastIndexOf('/');
    return i <= 0 ? '/' : path.slice(0, i);
  }

  var tries = ['', '.js', '.jsx', '.ts', '.tsx', '.json',
    '/index.js', '/index.jsx', '/index.ts', '/index.tsx'];

  function resolvePath(base, spec) {
    var p = spec.charAt(0) === '/' ? normalize(spec) : normalize(dirOf(base) + '/' + spec);
    for (var i = 0; i < tries.length; i++) {
      var candidate = p + tries[i];
      if (Object.prototype.hasOwnProperty.call(__pnModules, candidate)) return candidate;
    }
    return null;
  }

  function requireFrom(base, spec) {
    if (Object.prototype.hasOwnProperty.call(builtins, spec)) return builtins[spec]();
    if (/\.css$/.test(spec)) return {};
    if (spec.charAt(0) !== '.' && spec.charAt(0) !== '/') return {};

    var path = resolvePath(base, spec);
    if (path === null) return {};
    if (Object.prototype.hasOwnProperty.call(cache, path)) return cache[path].exports;

    var module = { exports: {} };
    cache[path] = module;
    try {
      __pnModules[path](function (s) { return requireFrom(path, s); }, module, module.exports);
    } catch (e) {
      delete cache[path];
      __pnReportError(e);
      throw e;
    }
    return module.exports;
  }

  window.__pnRequire = function (spec) { return requireFrom('/', spec); };

  window.__pnReportError = function (e) {
    try {
      parent.postMessage({
        type: 'preview-error',
        message: String((e && e.message) || e),
        stack: String((e && e.stack) || '')
      }, '*');
    } catch (_) {}
  };
})();
`

// pollJS keeps the preview current: it long-polls the change endpoint and
// reloads the page when the server reports a newer tree.
const pollJS = `(function () {
  function poll(since) {
    fetch('/__poll?since=' + since).then(function (r) { return r.json(); }).then(function (s) {
      if (s.changed) { location.reload(); return; }
      setTimeout(function () { poll(s.lastModified); }, 2000);
    }).catch(function () {
      setTimeout(function () { poll(since); }, 2000);
    });
  }
  poll(Date.now());
})();
`
